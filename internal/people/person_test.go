package people

import (
	"testing"
	"time"

	"github.com/gogotex/docsync/internal/odm"
	"github.com/stretchr/testify/require"
)

func TestPersonValidate(t *testing.T) {
	cases := []struct {
		p    Person
		want error
	}{
		{Person{Name: "a"}, nil},
		{Person{Name: "  "}, ErrNameRequired},
		{Person{Name: "a", Email: "a@b"}, nil},
		{Person{Name: "a", Email: "@b"}, ErrInvalidEmail},
		{Person{Name: "a", Email: "a@"}, ErrInvalidEmail},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.p.Validate(), "%+v", tc.p)
	}
}

func TestPersonDefaults(t *testing.T) {
	p := &Person{Email: " X@Y.io"}
	p.ApplyDefaults()
	require.Equal(t, []string{}, p.Tags)
	require.Equal(t, "x@y.io", p.Email)
	require.WithinDuration(t, time.Now(), p.CreatedAt, time.Minute)

	fixed := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	p = &Person{CreatedAt: fixed, Tags: []string{"keep"}}
	p.ApplyDefaults()
	require.Equal(t, fixed, p.CreatedAt)
	require.Equal(t, []string{"keep"}, p.Tags)
}

func TestRegisterExposesPeople(t *testing.T) {
	r := odm.NewRegistry()
	Register(r)
	p, err := r.Proxy(ModelName, nil)
	require.NoError(t, err)
	require.Equal(t, "people", p.Name())
	require.Equal(t, []string{"name", "email", "likes", "tags", "createdAt"}, p.Schema().Fields)
}
