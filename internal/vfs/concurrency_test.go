package vfs

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConcurrentLockYieldsOneToken(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)

	const workers = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := file.Lock(0)
			if err != nil {
				assert.True(t, errors.Is(err, ErrForbidden))
				return
			}
			mu.Lock()
			tokens = append(tokens, token)
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, tokens, 1)
}

func TestConcurrentCreateOneWins(t *testing.T) {
	fx := newFixture(t)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		conflict int
	)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.root().CreateFileString("file", fmt.Sprintf("writer %d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrConflict):
				conflict++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
	assert.Equal(t, workers-1, conflict)
}

func TestConcurrentReadersSeeWholeContent(t *testing.T) {
	fx := newFixture(t)
	first := "first version"
	second := "second version, somewhat longer"
	file := fx.file(fx.root(), "file", first)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			content := first
			if i%2 == 0 {
				content = second
			}
			assert.NoError(t, file.UpdateContentString(content, ""))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			got, err := file.ContentString()
			assert.NoError(t, err)
			assert.Contains(t, []string{first, second}, got)
		}
	}()
	wg.Wait()
}
