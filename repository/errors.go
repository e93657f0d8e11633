package repository

import (
	"database/sql"
	"strings"

	"github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/uptrace/bun/driver/pgdriver"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique or primary key
// constraint failure from sqlite or postgres.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == pgUniqueViolation
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// conflictField names the column behind a unique violation on users.
func conflictField(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		constraint := pgErr.Field('n')
		switch {
		case strings.Contains(constraint, "email"):
			return "email"
		case strings.Contains(constraint, "google_id"):
			return "google_id"
		case strings.Contains(constraint, "github_id"):
			return "github_id"
		}
		return "login"
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return "email"
	case strings.Contains(msg, "users.google_id"):
		return "google_id"
	case strings.Contains(msg, "users.github_id"):
		return "github_id"
	}
	return "login"
}

func mapIdentityError(err error, record *identity.Identity) error {
	if err == nil {
		return nil
	}

	if IsUniqueViolation(err) {
		field := conflictField(err)
		value := record.Login
		switch field {
		case "email":
			value = record.Email
		case "google_id":
			value = record.ExternalID(identity.ProviderGoogle)
		case "github_id":
			value = record.ExternalID(identity.ProviderGitHub)
		}
		return identity.NewAlreadyExists(field, value, err)
	}

	return errors.Wrap(err, errors.CategoryInternal, "identity store failure")
}

func mapLookupError(err error, login string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return identity.NewIdentityNotFound(login)
	}
	return errors.Wrap(err, errors.CategoryInternal, "identity lookup failed")
}
