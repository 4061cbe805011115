package main

import (
	"context"
	"os"

	"github.com/tock/tockloader/board"
	"github.com/tock/tockloader/bootloader"
	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/flashfile"
)

// openDevice resolves --port/--flash-file into a concrete
// board.Interface, opens it, and enters bootloader mode so the caller
// can issue flash operations immediately. The caller must Close() the
// returned device (and should ExitBootloaderMode on success).
func openDevice(ctx context.Context) (board.Interface, error) {
	var dev board.Interface

	switch {
	case flagFlashFile != "":
		if _, err := os.Stat(flagFlashFile); os.IsNotExist(err) {
			if err := flashfile.Create(flagFlashFile, flagFlashSize); err != nil {
				return nil, err
			}
		}
		dev = flashfile.New(flagFlashFile, flagBoardAddr, flagPageSize, flagAppsStart, flagBoardName, flagBoardArch)

	case flagSerialPort != "":
		st := bootloader.NewSerialTransport(flagSerialPort)
		dev = st

	default:
		return nil, errs.New(errs.KindUsage, "specify --port or --flash-file to select a device")
	}

	if err := dev.Open(ctx); err != nil {
		return nil, err
	}
	if err := dev.EnterBootloaderMode(ctx); err != nil {
		_ = dev.Close()
		return nil, err
	}
	if _, err := dev.GetAllAttributes(ctx); err != nil {
		_ = dev.ExitBootloaderMode(ctx)
		_ = dev.Close()
		return nil, err
	}

	return dev, nil
}

// closeDevice exits bootloader mode (best effort) and releases the
// underlying connection.
func closeDevice(ctx context.Context, dev board.Interface) {
	_ = dev.ExitBootloaderMode(ctx)
	_ = dev.Close()
}
