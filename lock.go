package pstore

import (
	"encoding/binary"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// writerLock is component B (spec §4.B, §5): the `<db>.lock` file plus a
// heartbeat goroutine. Exactly one writer may hold the OS advisory lock at a
// time; the heartbeat timestamp lets a tool decide whether a held lock looks
// abandoned, though only the OS lock itself is ever actually exclusive.
type writerLock struct {
	file   *os.File
	lost   atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
	log    zerolog.Logger
}

// acquireLock opens (creating if needed) path+".lock", takes the OS advisory
// exclusive lock, and starts a heartbeat goroutine. Returns ErrAlreadyLocked
// if another writer holds it, whether or not that writer's heartbeat looks
// stale; a stale heartbeat only adds a warning log.
func acquireLock(path string, heartbeatInterval, gracePeriod time.Duration, log zerolog.Logger) (*writerLock, error) {
	lockPath := path + ".lock"
	log = componentLogger(log, "lock")

	f, openErr := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o644)
	if openErr != nil {
		return nil, openErr
	}

	ok, flockErr := tryFlock(f)
	if flockErr != nil {
		f.Close()
		return nil, flockErr
	}
	if !ok {
		stale := heartbeatIsStale(f, gracePeriod)
		f.Close()
		if stale {
			log.Warn().Str("path", lockPath).Msg("lock held but heartbeat looks stale; holder must exit before it can be reclaimed")
		}
		return nil, wrap(ErrAlreadyLocked)
	}

	wl := &writerLock{
		file:   f,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		log:    log,
	}
	wl.writeHeartbeat()
	go wl.heartbeatLoop(heartbeatInterval)

	return wl, nil
}

func heartbeatIsStale(f *os.File, gracePeriod time.Duration) bool {
	buf := make([]byte, 8)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return true
	}
	lastMs := binary.LittleEndian.Uint64(buf)
	age := time.Since(time.UnixMilli(int64(lastMs)))
	return age > gracePeriod
}

func (wl *writerLock) writeHeartbeat() {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(time.Now().UnixMilli()))
	if _, err := wl.file.WriteAt(buf, 0); err != nil {
		wl.lost.Store(true)
		wl.log.Error().Err(err).Msg("heartbeat write failed, marking lock lost")
	}
}

func (wl *writerLock) heartbeatLoop(interval time.Duration) {
	defer close(wl.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-wl.stopCh:
			return
		case <-ticker.C:
			wl.writeHeartbeat()
		}
	}
}

// okToWrite reports whether the heartbeat is still healthy; a writer
// observing false must fail subsequent writes with ErrLockLost (spec §7).
func (wl *writerLock) okToWrite() bool { return !wl.lost.Load() }

func (wl *writerLock) release() error {
	close(wl.stopCh)
	<-wl.doneCh

	if err := unflock(wl.file); err != nil {
		wl.file.Close()
		return err
	}
	return wl.file.Close()
}
