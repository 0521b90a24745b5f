// Package files implements file utilities shared by the model persistence code: existence checks and
// atomic writes coordinated across processes with a lock file.
package files

import (
	"bufio"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultDirCreationPerm is used when creating missing parent directories.
var DefaultDirCreationPerm = os.FileMode(0755)

// LockPollPeriod is the minimum wait between attempts to acquire a busy lock file. A random jitter of
// up to the same amount is added.
var LockPollPeriod = 500 * time.Millisecond

// Exists returns whether the path exists (file or directory).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteAtomic creates (or replaces) filePath with the contents produced by write.
//
// The content is written to a uniquely named temporary file in the same directory, which is then
// renamed to filePath, so readers never observe a partially written file.
// It uses a temporary filePath+".lock" to coordinate multiple processes/goroutines writing the same file
// at the same time: the last writer wins, but each write is complete.
func WriteAtomic(filePath string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(filePath), DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %q", filePath)
	}

	lockPath := filePath + ".lock"
	var mainErr error
	errLock := execOnFileLock(lockPath, func() {
		tmpPath := filePath + "." + uuid.NewString() + ".tmp"
		tmpFile, err := os.Create(tmpPath)
		if err != nil {
			mainErr = errors.Wrapf(err, "creating temporary file %q", tmpPath)
			return
		}
		var tmpFileClosed bool
		defer func() {
			// If we exit with an error, make sure to close and remove the unfinished temporary file.
			if !tmpFileClosed {
				if err := tmpFile.Close(); err != nil {
					klog.Warningf("Failed closing temporary file %q: %v", tmpPath, err)
				}
				if err := os.Remove(tmpPath); err != nil {
					klog.Warningf("Failed removing temporary file %q: %v", tmpPath, err)
				}
			}
		}()

		buffered := bufio.NewWriter(tmpFile)
		if err := write(buffered); err != nil {
			mainErr = errors.WithMessagef(err, "while writing %q", tmpPath)
			return
		}
		if err := buffered.Flush(); err != nil {
			mainErr = errors.Wrapf(err, "failed to flush %q", tmpPath)
			return
		}

		tmpFileClosed = true
		if err := tmpFile.Close(); err != nil {
			mainErr = errors.Wrapf(err, "failed to close temporary file %q", tmpPath)
			_ = os.Remove(tmpPath)
			return
		}
		if err := os.Rename(tmpPath, filePath); err != nil {
			mainErr = errors.Wrapf(err, "failed to move temporary file %q to %q", tmpPath, filePath)
			_ = os.Remove(tmpPath)
			return
		}

		// The file is in place, so we no longer need the lock file.
		if err := os.Remove(lockPath); err != nil {
			klog.Warningf("Error removing lock file %q: %+v", lockPath, err)
		}
	})
	if mainErr != nil {
		return mainErr
	}
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking %q to write %q", lockPath, filePath)
	}
	return nil
}

// execOnFileLock opens the lockPath file (or creates if it doesn't yet exist), locks it, and executes the function.
// If the lockPath is already locked, it polls with a LockPollPeriod to 2*LockPollPeriod period (randomly),
// until it acquires the lock.
func execOnFileLock(lockPath string, fn func()) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(LockPollPeriod + time.Duration(rand.Int63n(int64(LockPollPeriod)+1)))
	}

	// Setup clean up in a deferred function, so it happens even if `fn()` panics.
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil {
			if err == nil {
				err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
			} else {
				klog.Errorf("Error unlocking file %q: %v", lockPath, unlockErr)
			}
		}
	}()

	fn()
	return
}
