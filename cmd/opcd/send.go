package main

import (
	"context"
	"encoding/hex"
	"net"
	"time"

	"github.com/Zereker/opc"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// clientFlags are shared by the commands that send a single frame.
type clientFlags struct {
	addr    string
	channel uint8
	strict  bool
	timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.addr, "addr", "a", "127.0.0.1:7890", "Address of the OPC server")
	flags.Uint8VarP(&f.channel, "channel", "c", 0, "Channel to address (0 is broadcast)")
	flags.BoolVar(&f.strict, "strict", false, "Fail instead of truncating an oversize payload")
	flags.DurationVar(&f.timeout, "timeout", 5*time.Second, "Dial and write timeout")
}

// send dials the server and writes one frame.
func (f *clientFlags) send(ctx context.Context, payload opc.Payload) error {
	policy := opc.Truncate
	if f.strict {
		policy = opc.Strict
	}
	codec := opc.NewCodec(policy)

	// Encode first so a Strict failure does not open a connection.
	frame, err := codec.Encode(opc.NewMessage(f.channel, payload))
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: f.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", f.addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", f.addr)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(f.timeout))
	if _, err := conn.Write(frame); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

func sendCmd() *cobra.Command {
	var (
		client clientFlags
		pixels int
		color  string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one set-pixel-colours frame",
		Example: `  opcd send --pixels 64 --color ff8000
  opcd send -a 10.0.0.5:7890 -c 2 --pixels 512 --color 000000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, g, b, err := parseColor(color)
			if err != nil {
				return err
			}

			px := opc.NewPixels(pixels)
			px.Fill(r, g, b)
			return client.send(cmd.Context(), px)
		},
	}

	client.register(cmd)
	cmd.Flags().IntVarP(&pixels, "pixels", "n", 1, "Number of pixels in the frame")
	cmd.Flags().StringVar(&color, "color", "ffffff", "Colour as six hex digits (rrggbb)")

	return cmd
}

func sysexCmd() *cobra.Command {
	var (
		client   clientFlags
		systemID uint16
		data     string
	)

	cmd := &cobra.Command{
		Use:   "sysex",
		Short: "Send one system-exclusive frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := hex.DecodeString(data)
			if err != nil {
				return errors.Wrap(err, "decode --data")
			}
			return client.send(cmd.Context(), opc.NewSystemExclusive(systemID, b))
		},
	}

	client.register(cmd)
	cmd.Flags().Uint16Var(&systemID, "system-id", 1, "System identifier")
	cmd.Flags().StringVar(&data, "data", "", "Payload as hex")

	return cmd
}

func rawCmd() *cobra.Command {
	var (
		client  clientFlags
		command uint8
		data    string
	)

	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Send one frame with an arbitrary command byte",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := hex.DecodeString(data)
			if err != nil {
				return errors.Wrap(err, "decode --data")
			}
			return client.send(cmd.Context(), opc.NewPayload(command, b))
		},
	}

	client.register(cmd)
	cmd.Flags().Uint8Var(&command, "command", 0, "Command byte")
	cmd.Flags().StringVar(&data, "data", "", "Payload as hex")

	return cmd
}

// parseColor parses six hex digits into red, green and blue.
func parseColor(s string) (r, g, b byte, err error) {
	v, err := hex.DecodeString(s)
	if err != nil || len(v) != 3 {
		return 0, 0, 0, errors.Errorf("invalid colour %q, want rrggbb", s)
	}
	return v[0], v[1], v[2], nil
}
