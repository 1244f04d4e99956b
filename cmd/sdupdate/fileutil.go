package main

import (
	"os"

	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

func openReadOnly(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to open %s", path)
	}
	return f, nil
}
