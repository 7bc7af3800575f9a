//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// race builds hash at the minimum cost so suites fit their timeouts
	return bcrypt.MinCost
}
