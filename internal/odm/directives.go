package odm

import "go.mongodb.org/mongo-driver/bson"

// Builders for the single-field update directives the convenience wrappers
// send through Update.

func SetField(field string, value interface{}) bson.D {
	return bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: value}}}}
}

func UnsetField(field string) bson.D {
	return bson.D{{Key: "$unset", Value: bson.D{{Key: field, Value: ""}}}}
}

func IncField(field string, delta interface{}) bson.D {
	return bson.D{{Key: "$inc", Value: bson.D{{Key: field, Value: delta}}}}
}

// PushValue appends value to the array field as a single element.
func PushValue(field string, value interface{}) bson.D {
	return bson.D{{Key: "$push", Value: bson.D{{Key: field, Value: value}}}}
}

// PushValues appends each of values to the array field.
func PushValues(field string, values ...interface{}) bson.D {
	return bson.D{{Key: "$push", Value: bson.D{{Key: field, Value: each(values)}}}}
}

// AddToSetValue appends value unless an equal element is already present.
func AddToSetValue(field string, value interface{}) bson.D {
	return bson.D{{Key: "$addToSet", Value: bson.D{{Key: field, Value: value}}}}
}

// AddToSetValues appends each value not already present.
func AddToSetValues(field string, values ...interface{}) bson.D {
	return bson.D{{Key: "$addToSet", Value: bson.D{{Key: field, Value: each(values)}}}}
}

// PullValue removes every element equal to value.
func PullValue(field string, value interface{}) bson.D {
	return bson.D{{Key: "$pull", Value: bson.D{{Key: field, Value: value}}}}
}

func each(values []interface{}) bson.D {
	if values == nil {
		values = []interface{}{}
	}
	return bson.D{{Key: "$each", Value: bson.A(values)}}
}
