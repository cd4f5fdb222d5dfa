package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tphakala/camcore/internal/camera"
	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
)

const defaultListLimit = 10

const helpText = `commands:
  photo | p             take a still picture
  record | r            start or stop a recording
  start                 bind the camera
  stop                  stop recording and unbind the camera
  status | s            show session and recording state
  grant <capability>    grant camera or microphone
  revoke <capability>   revoke camera or microphone
  media [photo|video]   list recent media
  quit | q              shut down
`

// commandLoop executes one command per input line until quit, end of input
// or ctx is done. It reports whether quit was requested.
func (a *App) commandLoop(ctx context.Context, in io.Reader, out io.Writer) (bool, error) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			GetLogger().Warn("command input failed", logger.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case line, ok := <-lines:
			if !ok {
				GetLogger().Debug("command input closed")
				return false, nil
			}
			if quit := a.execCommand(ctx, line, out); quit {
				return true, nil
			}
		}
	}
}

// execCommand runs a single command line and reports whether it asked to quit
func (a *App) execCommand(ctx context.Context, line string, out io.Writer) bool {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}

	var err error
	switch fields[0] {
	case "quit", "q", "exit":
		return true
	case "help", "h", "?":
		_, _ = io.WriteString(out, helpText)
	case "photo", "p":
		err = a.cmdPhoto(ctx, out)
	case "record", "r":
		err = a.cmdRecord(ctx, out)
	case "start":
		if err = a.StartSession(ctx); err == nil {
			_, _ = fmt.Fprintln(out, "camera bound")
		}
	case "stop":
		if err = a.StopSession(ctx); err == nil {
			_, _ = fmt.Fprintln(out, "camera unbound")
		}
	case "status", "s":
		err = a.cmdStatus(ctx, out)
	case "grant", "revoke":
		err = a.cmdPermission(fields, out)
	case "media":
		err = a.cmdMedia(ctx, fields, out)
	default:
		_, _ = fmt.Fprintf(out, "unknown command %q, type help\n", fields[0])
	}

	if err != nil {
		_, _ = fmt.Fprintf(out, "error: %v\n", err)
	}
	return false
}

func (a *App) cmdPhoto(ctx context.Context, out io.Writer) error {
	photo, err := a.TakePhoto(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "photo saved: %s (%d ms)\n", photo.Location, photo.DurationMs)
	return nil
}

func (a *App) cmdRecord(ctx context.Context, out io.Writer) error {
	st, err := a.ToggleRecording(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "recording %s\n", st.State)
	return nil
}

func (a *App) cmdStatus(ctx context.Context, out io.Writer) error {
	st, err := a.Status(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "bound=%t lens=%s recording=%s finalized=%d camera=%t microphone=%t\n",
		st.Bound, st.Lens, st.Recording.State, st.Recording.Finalized,
		st.Permissions[string(camera.CapabilityCamera)],
		st.Permissions[string(camera.CapabilityMicrophone)])
	if st.Analysis != nil {
		_, _ = fmt.Fprintf(out, "frames delivered=%d analyzed=%d dropped=%d\n",
			st.Analysis.Delivered, st.Analysis.Analyzed, st.Analysis.Dropped)
	}
	return nil
}

func (a *App) cmdPermission(fields []string, out io.Writer) error {
	if len(fields) != 2 {
		return errors.Newf("usage: %s <camera|microphone>", fields[0]).
			Component(ComponentApp).
			Category(errors.CategoryValidation).
			Build()
	}
	c, err := parseCapability(fields[1])
	if err != nil {
		return err
	}

	verb := "revoked"
	if fields[0] == "grant" {
		verb = "granted"
		err = a.perms.Grant(c)
	} else {
		err = a.perms.Revoke(c)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", c, verb)
	return nil
}

func (a *App) cmdMedia(ctx context.Context, fields []string, out io.Writer) error {
	var kind camera.MediaKind
	if len(fields) > 1 {
		kind = camera.MediaKind(fields[1])
		if kind != camera.MediaPhoto && kind != camera.MediaVideo {
			return errors.Newf("unknown media kind %q", fields[1]).
				Component(ComponentApp).
				Category(errors.CategoryValidation).
				Build()
		}
	}

	items, err := a.store.List(ctx, kind, defaultListLimit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		_, _ = fmt.Fprintln(out, "no media")
		return nil
	}
	for i := range items {
		m := &items[i]
		_, _ = fmt.Fprintf(out, "%s %-5s %-8s %s\n", m.ID, m.Kind, m.Status, m.DisplayName)
	}
	return nil
}

func parseCapability(s string) (camera.Capability, error) {
	switch c := camera.Capability(s); c {
	case camera.CapabilityCamera, camera.CapabilityMicrophone:
		return c, nil
	default:
		return "", errors.Newf("unknown capability %q", s).
			Component(ComponentApp).
			Category(errors.CategoryValidation).
			Build()
	}
}
