package bootloader_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tock/tockloader/bootloader"
)

func TestRunnerDoRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 2)
		server.Read(buf) // ESC PING
		server.Write(bootloader.EncodeResponse(bootloader.RspPong, []byte{0x01, 0x02}))
	}()

	runner := bootloader.NewRunner(client)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := runner.Do(ctx, bootloader.CmdPing, nil, 2, int(bootloader.RspPong))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, payload)
}

func TestRunnerDoUnexpectedCode(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 2)
		server.Read(buf)
		server.Write(bootloader.EncodeResponse(bootloader.RspBadArgs, nil))
	}()

	runner := bootloader.NewRunner(client)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := runner.Do(ctx, bootloader.CmdPing, nil, 0, int(bootloader.RspPong))
	require.Error(t, err)
}

func TestRunnerDoContextDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 2)
		server.Read(buf) // consume the request; never reply
	}()

	runner := bootloader.NewRunner(client)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := runner.Do(ctx, bootloader.CmdPing, nil, 2, -1)
	require.Error(t, err)
}
