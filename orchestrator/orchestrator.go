// Package orchestrator implements the update state machine: discovery,
// validation, backup, write, optional revert, and cleanup chained over
// the SD filesystem and flash collaborators.
package orchestrator

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/sdupdate-project/sdupdate/config"
	"github.com/sdupdate-project/sdupdate/copier"
	"github.com/sdupdate-project/sdupdate/flashsim"
	"github.com/sdupdate-project/sdupdate/image"
	"github.com/sdupdate-project/sdupdate/sdcardfs"
	"github.com/sdupdate-project/sdupdate/sdkerrors"
	"github.com/sdupdate-project/sdupdate/sdlog"
)

// Orchestrator owns one update attempt's worth of state: the flash
// slot it may overwrite, the configuration telling it where to look
// on SD, and where to log. It carries no process-wide mutable globals
// — the mount handle it acquires during Run is local to that call.
type Orchestrator struct {
	Config config.Config
	Slot   flashsim.Area
	Log    *logrus.Logger
}

// New constructs an Orchestrator. log may be nil, in which case the
// standard logrus logger is used.
func New(cfg config.Config, slot flashsim.Area, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{Config: cfg, Slot: slot, Log: log}
}

func (o *Orchestrator) candidateRelPath(name string) string {
	return filepath.Join(o.Config.UpdateDirName, name)
}

// Run is the orchestrator's single entry point: it returns true iff a
// new image was installed and committed. Every failure path converges
// on a clean false return; no error is propagated out of this call.
func (o *Orchestrator) Run() bool {
	log := o.Log

	// INIT
	card, err := sdcardfs.Mount(o.Config.SDMountPoint)
	if err != nil {
		log.WithError(err).Warn("INIT: failed to mount SD card, not updated")
		return false
	}

	outcome := o.runMounted(card)
	o.cleanup(card, outcome)
	return outcome == outcomeUpdated
}

type outcome int

const (
	outcomeNotUpdated outcome = iota
	outcomeUpdated
)

// runMounted runs DISCOVER through WRITE/REVERT, assuming the card is
// already mounted. It does not unmount — that is CLEANUP's job,
// invoked unconditionally by the caller regardless of outcome.
func (o *Orchestrator) runMounted(card *sdcardfs.Card) outcome {
	log := o.Log

	// DISCOVER
	entries, err := card.ReadDir(o.Config.UpdateDirName)
	if err != nil {
		log.WithError(err).Warn("DISCOVER: failed to read update directory")
		return outcomeNotUpdated
	}
	actualName, found := sdcardfs.FindCaseInsensitive(entries, o.Config.ImageFileName)
	if !found {
		log.Info("DISCOVER: no candidate image found")
		return outcomeNotUpdated
	}

	candidatePath := o.candidateRelPath(actualName)
	candidate, err := card.Open(candidatePath, os.O_RDONLY)
	if err != nil {
		log.WithError(err).Warn("DISCOVER: failed to open candidate file")
		return outcomeNotUpdated
	}
	defer candidate.Close()

	hdr, err := image.ReadHeader(candidate)
	if err != nil {
		log.WithError(err).Warn("DISCOVER: candidate header is invalid")
		return outcomeNotUpdated
	}
	log.WithField("image_size", sdlog.Bytes(uint64(hdr.ImageSize))).Info("DISCOVER: candidate found")

	// VALIDATE
	if err := image.Validate(candidate, hdr); err != nil {
		log.WithError(err).Warn("VALIDATE: candidate failed validation")
		return outcomeNotUpdated
	}
	log.Info("VALIDATE: candidate digest verified")

	// BACKUP
	backupPath := o.candidateRelPath(o.Config.BackupFileName)
	if err := card.Unlink(backupPath); err != nil {
		log.WithError(err).Warn("BACKUP: failed to reset backup file")
		return outcomeNotUpdated
	}
	backupFile, err := card.Open(backupPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC)
	if err != nil {
		log.WithError(err).Warn("BACKUP: failed to create backup file")
		return outcomeNotUpdated
	}
	defer backupFile.Close()

	if err := copier.Backup(o.Slot, backupFile); err != nil {
		log.WithError(err).Warn("BACKUP: failed to copy slot to SD")
		return outcomeNotUpdated
	}
	log.WithField("size", sdlog.Bytes(uint64(o.Slot.Size()))).Info("BACKUP: primary slot saved to SD")

	// WRITE
	if _, err := candidate.Seek(0, 0); err != nil {
		log.WithError(err).Warn("WRITE: failed to rewind candidate")
		return outcomeNotUpdated
	}
	if err := copier.WriteImage(candidate, o.Slot); err != nil {
		log.WithError(err).Warn("WRITE: failed to write candidate to flash, attempting revert")
		return o.revert(card, backupFile)
	}
	log.Info("WRITE: candidate installed to primary slot")

	if err := candidate.Close(); err != nil {
		log.WithError(err).Warn("WRITE: failed to close candidate after successful write")
	}
	if err := card.Unlink(candidatePath); err != nil {
		log.WithError(err).Warn("CLEANUP: failed to unlink candidate after successful update")
	}

	return outcomeUpdated
}

// revert implements the REVERT state: restore the primary slot from
// the backup file just produced by BACKUP. It rewinds and reads the
// same read-write handle BACKUP wrote through; the backup file is not
// reopened read-only. Failure here is logged as
// fatal — the device is left in an inconsistent state, with no further
// automatic remediation.
func (o *Orchestrator) revert(card *sdcardfs.Card, backupFile *sdcardfs.File) outcome {
	log := o.Log

	if _, err := backupFile.Seek(0, 0); err != nil {
		log.WithError(sdkerrors.Wrap(sdkerrors.KindRevertFailed, err, "failed to rewind backup file")).
			Error("REVERT: device left in an inconsistent state")
		return outcomeNotUpdated
	}

	if err := copier.Restore(backupFile, o.Slot); err != nil {
		log.WithError(sdkerrors.Wrap(sdkerrors.KindRevertFailed, err, "failed to restore slot from backup")).
			Error("REVERT: device left in an inconsistent state")
		return outcomeNotUpdated
	}

	log.Info("REVERT: primary slot restored from backup")
	return outcomeNotUpdated
}

// cleanup implements CLEANUP: unmount the card. The candidate file's
// own close/unlink already happened inline in runMounted (both its
// success and failure paths close it via defer or explicit Close), so
// this step only has the mount handle left to release — and it always
// runs, on every exit path, success or failure.
func (o *Orchestrator) cleanup(card *sdcardfs.Card, outcome outcome) {
	if err := card.Unmount(); err != nil {
		o.Log.WithError(err).Warn("CLEANUP: failed to unmount SD card")
	}
	o.Log.WithField("updated", outcome == outcomeUpdated).Info("CLEANUP: done")
}
