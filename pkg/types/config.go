package types

import (
	"io/fs"
)

// RenderedConfig is the materialized output of applying a template to a
// variable set. Content is a pure function of the inputs, which is what
// makes skip-on-unchanged writes possible downstream.
type RenderedConfig struct {
	// Template the content was rendered from.
	Template string

	// Target is the absolute destination path.
	Target string

	// Content is the rendered bytes.
	Content []byte

	// Required ownership and permissions at the destination.
	UID  int
	GID  int
	Mode fs.FileMode
}
