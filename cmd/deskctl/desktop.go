package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xiaot623/deskrelay/internal/commandclient"
	"github.com/xiaot623/deskrelay/internal/protocol"
)

func newClient() *commandclient.Client {
	return commandclient.New(cfg.ExecutorURL, commandclient.Options{
		MaxMessageSize: cfg.MaxMessageSize,
	}, logger)
}

// withClient runs fn against a fresh command client and prints the response.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *commandclient.Client) (*protocol.ResponseFrame, error)) error {
	client := newClient()
	defer client.Close()

	resp, err := fn(cmd.Context(), client)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("command failed: %s", resp.Error)
	}
	return printJSON(resp)
}

func atois(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", a)
		}
		out[i] = n
	}
	return out, nil
}

var (
	shotFormat  string
	shotQuality int
	shotOutput  string
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture the executor's screen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		defer client.Close()

		resp, err := client.Screenshot(cmd.Context(), shotFormat, shotQuality)
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("screenshot failed: %s", resp.Error)
		}
		if shotOutput == "" {
			return printJSON(resp)
		}
		if resp.ScreenshotResult == nil {
			return fmt.Errorf("screenshot response carried no image")
		}

		data, err := base64.StdEncoding.DecodeString(resp.Image)
		if err != nil {
			return fmt.Errorf("decode image: %w", err)
		}
		if err := os.WriteFile(shotOutput, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("Saved %dx%d %s to %s\n", resp.Width, resp.Height, resp.Format, shotOutput)
		return nil
	},
}

var (
	clickButton string
	clickDouble bool
)

var clickCmd = &cobra.Command{
	Use:   "click <x> <y>",
	Short: "Click at a screen position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		xy, err := atois(args)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *commandclient.Client) (*protocol.ResponseFrame, error) {
			return c.Click(ctx, xy[0], xy[1], clickButton, clickDouble)
		})
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <x> <y>",
	Short: "Move the pointer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		xy, err := atois(args)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *commandclient.Client) (*protocol.ResponseFrame, error) {
			return c.Move(ctx, xy[0], xy[1])
		})
	},
}

var scrollCmd = &cobra.Command{
	Use:   "scroll <x> <y> <scroll_x> <scroll_y>",
	Short: "Scroll at a screen position",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := atois(args)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *commandclient.Client) (*protocol.ResponseFrame, error) {
			return c.Scroll(ctx, v[0], v[1], v[2], v[3])
		})
	},
}

var dragCmd = &cobra.Command{
	Use:   "drag <start_x> <start_y> <end_x> <end_y>",
	Short: "Drag with the left button held",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := atois(args)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *commandclient.Client) (*protocol.ResponseFrame, error) {
			return c.Drag(ctx, v[0], v[1], v[2], v[3])
		})
	},
}

var typeCmd = &cobra.Command{
	Use:   "type <text>",
	Short: "Type text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *commandclient.Client) (*protocol.ResponseFrame, error) {
			return c.Type(ctx, args[0])
		})
	},
}

var keypressCmd = &cobra.Command{
	Use:   "keypress <key...>",
	Short: "Tap keys in order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *commandclient.Client) (*protocol.ResponseFrame, error) {
			return c.Keypress(ctx, args...)
		})
	},
}

func init() {
	screenshotCmd.Flags().StringVar(&shotFormat, "format", "", "jpeg or png (default from executor)")
	screenshotCmd.Flags().IntVar(&shotQuality, "quality", 0, "1-100, lossy formats only")
	screenshotCmd.Flags().StringVarP(&shotOutput, "output", "o", "", "write the decoded image to this file")

	clickCmd.Flags().StringVar(&clickButton, "button", protocol.ButtonLeft, "left, right or middle")
	clickCmd.Flags().BoolVar(&clickDouble, "double", false, "double click")

	rootCmd.AddCommand(screenshotCmd, clickCmd, moveCmd, scrollCmd, dragCmd, typeCmd, keypressCmd)
}
