package auth

// AccountStatus is the lockout state of an identity
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountLocked AccountStatus = "locked"
)

// StatusOf reports the status implied by the lock flag
func StatusOf(locked bool) AccountStatus {
	if locked {
		return AccountLocked
	}
	return AccountActive
}

// ApplyLoginFailure is the failure transition:
//
//	ACTIVE(n) -> ACTIVE(n+1)  when n+1 < threshold
//	ACTIVE(n) -> LOCKED(n+1)  when n+1 >= threshold
//	LOCKED    -> rejected, counter unchanged
//
// Stores that can not express it as one SQL statement run it under
// their own per subject lock.
func ApplyLoginFailure(current LoginAttemptState, threshold int) (LoginAttemptState, error) {
	if current.Locked {
		return current, ErrAccountLocked
	}
	if threshold <= 0 {
		threshold = DefaultLockThreshold
	}

	next := LoginAttemptState{Attempts: current.Attempts + 1}
	if next.Attempts >= threshold {
		next.Locked = true
		next.Tripped = true
	}
	return next, nil
}

// ApplyLoginReset is the success and password reset transition back to ACTIVE(0)
func ApplyLoginReset() LoginAttemptState {
	return LoginAttemptState{}
}
