// Package odm maps Go structs onto documents held in a MongoDB-style store.
//
// A model is a struct embedding Base inline:
//
//	type Person struct {
//		odm.Base `bson:",inline"`
//		Name     string   `bson:"name"`
//		Likes    int      `bson:"likes"`
//	}
//
// A Collection binds the model to one store collection and performs every
// store operation. Documents returned by a Collection stay bound to it, so
// p.Inc(ctx, "likes", 1) is an atomic increment whose result is copied back
// into p. The ConnectionManager behind a Collection connects lazily and
// rebuilds its handles after a fork.
package odm
