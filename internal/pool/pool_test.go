package pool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prividentity/cryptonet-go/internal/pool"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet/logging"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet/shim"
)

func openLib(t *testing.T) (*cryptonet.Library, *shim.Library) {
	t.Helper()
	drv := shim.New()
	lib, err := cryptonet.Open(cryptonet.Config{WorkingDir: t.TempDir(), Driver: drv, Logger: logging.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib, drv
}

func TestPoolLendsEachSessionOnce(t *testing.T) {
	lib, drv := openLib(t)
	p, err := pool.New(context.Background(), lib, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, drv.Sessions())

	var inUse sync.Map
	var overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Do(context.Background(), func(s *cryptonet.Session) error {
				if _, loaded := inUse.LoadOrStore(s, true); loaded {
					overlaps.Add(1)
				}
				time.Sleep(time.Millisecond)
				inUse.Delete(s)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load())

	require.NoError(t, p.Close())
	assert.Equal(t, 0, drv.Sessions())
	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, pool.ErrClosed)
}

func TestAcquireHonorsContext(t *testing.T) {
	lib, _ := openLib(t)
	p, err := pool.New(context.Background(), lib, nil, 1)
	require.NoError(t, err)
	defer p.Close()

	s, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewClosesOnFailure(t *testing.T) {
	lib, drv := openLib(t)
	_, err := pool.New(context.Background(), lib, "[]", 2)
	assert.ErrorIs(t, err, cryptonet.ErrSessionInit)
	assert.Equal(t, 0, drv.Sessions())

	_, err = pool.New(context.Background(), lib, nil, 0)
	assert.Error(t, err)
}

func TestSetConfigurationReachesAllSessions(t *testing.T) {
	lib, _ := openLib(t)
	p, err := pool.New(context.Background(), lib, nil, 2)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SetConfiguration(context.Background(), map[string]string{"input_image_format": "gray"}))
	assert.ErrorIs(t, p.SetConfiguration(context.Background(), "[]"), cryptonet.ErrConfiguration)

	gray := make([]byte, 8*8)
	for i := range gray {
		gray[i] = byte(i % 8 * 30)
	}
	for i := 0; i < 2; i++ {
		s, err := p.Acquire(context.Background())
		require.NoError(t, err)
		defer p.Release(s)
		_, err = s.ScanDocumentFront(context.Background(), cryptonet.Image{Pixels: gray, Width: 8, Height: 8}, nil)
		assert.NoError(t, err)
	}
}

func TestClosedPoolLendsNothing(t *testing.T) {
	lib, _ := openLib(t)
	p, err := pool.New(context.Background(), lib, nil, 3)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	for i := 0; i < 4; i++ {
		s, err := p.Acquire(context.Background())
		assert.Nil(t, s)
		assert.ErrorIs(t, err, pool.ErrClosed)
	}
	assert.ErrorIs(t, p.Do(context.Background(), func(*cryptonet.Session) error { return nil }), pool.ErrClosed)
	assert.ErrorIs(t, p.SetConfiguration(context.Background(), map[string]string{}), pool.ErrClosed)
}

func TestCloseWaitsForLease(t *testing.T) {
	lib, drv := openLib(t)
	p, err := pool.New(context.Background(), lib, nil, 2)
	require.NoError(t, err)

	s, err := p.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Close() }()

	select {
	case <-done:
		t.Fatal("Close returned while a session was lent out")
	case <-time.After(20 * time.Millisecond):
	}
	p.Release(s)
	require.NoError(t, <-done)
	assert.Equal(t, 0, drv.Sessions())
	assert.True(t, s.Closed())
}

func TestConcurrentSetConfiguration(t *testing.T) {
	lib, _ := openLib(t)
	p, err := pool.New(context.Background(), lib, nil, 4)
	require.NoError(t, err)
	defer p.Close()

	var held []*cryptonet.Session
	for i := 0; i < 2; i++ {
		s, err := p.Acquire(context.Background())
		require.NoError(t, err)
		held = append(held, s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.SetConfiguration(ctx, map[string]string{"input_image_format": "gray"})
		}()
	}

	time.Sleep(10 * time.Millisecond)
	for _, s := range held {
		p.Release(s)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "call %d", i)
	}

	gray := make([]byte, 8*8)
	for i := range gray {
		gray[i] = byte(i % 8 * 30)
	}
	err = p.Do(ctx, func(s *cryptonet.Session) error {
		_, err := s.ScanDocumentFront(ctx, cryptonet.Image{Pixels: gray, Width: 8, Height: 8}, nil)
		return err
	})
	assert.NoError(t, err)
}
