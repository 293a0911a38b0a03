package errors

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlateError(t *testing.T) {
	t.Run("message includes code, location and cause", func(t *testing.T) {
		err := NewSourceError("FRONT_MATTER", "unterminated front matter", errors.New("eof")).
			WithLocation("content/a.md", 3)

		assert.Equal(t, "[FRONT_MATTER] content/a.md:3 unterminated front matter: eof", err.Error())
	})

	t.Run("entity is used when no path is set", func(t *testing.T) {
		err := NewTransformError("MINIFY", "minify failed", nil).WithEntity("content/a.md")
		assert.Equal(t, "[MINIFY] content/a.md minify failed", err.Error())
	})

	t.Run("category matching through wrapping", func(t *testing.T) {
		base := NewTransformError("RENDER", "template failed", nil)
		wrapped := fmt.Errorf("rendering page: %w", base)

		assert.True(t, IsTransformError(wrapped))
		assert.False(t, IsSourceError(wrapped))
		assert.Equal(t, ErrorTypeTransform, TypeOf(wrapped))
	})

	t.Run("context", func(t *testing.T) {
		err := NewInternalError("X", "y", nil).WithContext("route", "/a/")
		assert.Equal(t, "/a/", err.Context["route"])
	})
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(NewCacheConsistencyError("SHAPE", "mismatch")))
	assert.True(t, IsFatal(NewIOError("WRITE", "disk full", nil)))
	assert.False(t, IsFatal(NewSourceError("PARSE", "bad", nil)))
	assert.False(t, IsFatal(NewTransformError("MINIFY", "bad", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeIO, "X", "y"))

	inner := NewSourceError("PARSE", "bad", nil).WithEntity("content/a.md")
	outer := WrapTransform(inner, "content/b.md", "DEP", "dependency failed")

	require.NotNil(t, outer)
	assert.Equal(t, "content/b.md", outer.Entity)
	assert.True(t, IsTransformError(outer))
	assert.True(t, IsSourceError(outer.Cause))
}

func TestErrorCollector(t *testing.T) {
	ec := NewErrorCollector()
	assert.False(t, ec.HasErrors())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ec.Add(fmt.Sprintf("content/%02d.md", i%5), NewSourceError("PARSE", "bad", nil))
		}(i)
	}
	wg.Wait()

	got := ec.GetErrors()
	require.Len(t, got, 5)
	assert.Equal(t, "content/00.md", got[0].ID)
	assert.Equal(t, "content/04.md", got[4].ID)
	assert.Equal(t, ErrorTypeSource, got[0].Type)
	assert.True(t, ec.Has("content/03.md"))

	ec.Add("content/x.md", nil)
	assert.Equal(t, 5, ec.Len())
}
