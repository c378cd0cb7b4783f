// Package lease implements the cooperative, time-bounded exclusive hold on
// a task (spec §4.F): the active-lease predicate, and the claim/release
// writers built on internal/task's front-matter mutation and
// internal/audit's event log.
package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/luislobo/workmesh/internal/audit"
	"github.com/luislobo/workmesh/internal/task"
)

// lockTimeout bounds how long Claim/Release wait on another process's
// advisory lock before giving up; the lease record itself is the
// authoritative state, so on a timeout the mutation runs without the lock
// instead of hanging.
const lockTimeout = 5 * time.Second

// withFileLock advisory-locks path+".lock" for the duration of fn (spec §9:
// "implementations may add advisory locks without changing the observable
// contract"). Acquisition is best-effort: if the lock cannot be taken
// within lockTimeout, fn still runs, since the lease's own
// {owner,acquired_at,expires_at} fields remain the real source of truth
// regardless of whether the lock was held.
func withFileLock(path string, fn func() error) error {
	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil || !locked {
		return fn()
	}
	defer fl.Unlock()
	return fn()
}

// TimeLayout is the lease timestamp format (spec §3.1): "YYYY-MM-DD HH:MM"
// local time.
const TimeLayout = "2006-01-02 15:04"

// IsActive reports whether l is an active lease: owner non-empty AND
// (no expires_at, OR now <= parse(expires_at), OR expires_at fails to
// parse). A corrupt timestamp is treated as still active so it never
// silently releases a claim.
func IsActive(l *task.Lease) bool {
	if l == nil || l.Owner == "" {
		return false
	}
	if l.ExpiresAt == "" {
		return true
	}
	expires, err := time.ParseInLocation(TimeLayout, l.ExpiresAt, time.Local)
	if err != nil {
		return true
	}
	return !time.Now().After(expires)
}

// Claim sets owner/acquired_at/expires_at on the task at path in one
// task.SetLease write, adds owner to assignee if absent, and audits a
// "claim" event.
func Claim(backlogDir, path, owner string, minutes int) error {
	return withFileLock(path, func() error {
		now := time.Now()
		acquired := now.Format(TimeLayout)
		var expires string
		if minutes > 0 {
			expires = now.Add(time.Duration(minutes) * time.Minute).Format(TimeLayout)
		}

		l := task.Lease{Owner: owner, AcquiredAt: acquired, ExpiresAt: expires}
		if err := task.SetLease(path, l); err != nil {
			return fmt.Errorf("claim: %w", err)
		}

		tk, err := task.ParseFile(path)
		if err != nil {
			return fmt.Errorf("claim: reparse: %w", err)
		}
		if !containsFold(tk.Assignee, owner) {
			if err := task.SetList(path, "assignee", append(tk.Assignee, owner)); err != nil {
				return fmt.Errorf("claim: update assignee: %w", err)
			}
		}

		return audit.Append(backlogDir, audit.Event{
			Action: "claim",
			TaskID: tk.ID,
			Actor:  owner,
			Details: map[string]any{
				"owner":      owner,
				"expires_at": expires,
			},
		})
	})
}

// Release removes all three lease keys and audits a "release" event.
// Any operator may force-release regardless of ownership.
func Release(backlogDir, path, actor string) error {
	return withFileLock(path, func() error {
		if err := task.ClearLease(path); err != nil {
			return fmt.Errorf("release: %w", err)
		}
		tk, err := task.ParseFile(path)
		if err != nil {
			return fmt.Errorf("release: reparse: %w", err)
		}
		return audit.Append(backlogDir, audit.Event{
			Action: "release",
			TaskID: tk.ID,
			Actor:  actor,
		})
	})
}

func containsFold(list []string, target string) bool {
	for _, v := range list {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
