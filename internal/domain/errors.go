package domain

import "errors"

var (
	// ErrDuplicateArticle reports a persistence uniqueness conflict on
	// Article.ExternalURL. The pipeline treats it as a benign skip.
	ErrDuplicateArticle = errors.New("article url already exists")

	// ErrDuplicateSource reports a uniqueness conflict on Source.Locator.
	ErrDuplicateSource = errors.New("source locator already exists")

	// ErrNotFound is returned by repositories when an entity does not exist.
	ErrNotFound = errors.New("not found")
)
