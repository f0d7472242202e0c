// Package bodyfile loads a request body from disk for the -D flag. It is
// the "body file loading" collaborator the core spec treats as external:
// the driver and executor only ever see the resulting []byte.
package bodyfile

import (
	"os"

	"github.com/pkg/errors"
)

// Load reads the file at path in full and returns its contents as the
// request body.
func Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading body file %q", path)
	}
	return data, nil
}
