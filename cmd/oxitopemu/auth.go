package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/term"
)

// passwordEnv holds the websocket password so it stays out of shell history.
const passwordEnv = "OXITOP_PASSWORD"

var errNoPassword = errors.New("no password: set " + passwordEnv + " or run on a terminal")

// readPassword returns the password from the environment, or prompts for
// it without echo.
func readPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return "", errNoPassword
	}

	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(pw) == 0 {
		return "", errNoPassword
	}

	return string(pw), nil
}

// requireBasicAuth rejects requests without the given credentials. An empty
// username disables the check.
func requireBasicAuth(username, password string, next http.Handler) http.Handler {
	if username == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="oxitopemu"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}
