package assistant

import (
	"context"
	log "log/slog"

	"echomind/internal/ipc"
	"echomind/internal/listen"
)

// Control answers echo-ctl for a running session. Injected text goes to q.
// say is refused while mic is held by a capture, so playback never lands in
// a recording; a nil mic accepts it at any time.
func (s *Session) Control(q *listen.Queue, mic *listen.Gate, quit func()) ipc.Handler {
	return func(_ context.Context, msg ipc.ControlMessage) ipc.Reply {
		switch msg.Cmd {
		case ipc.CmdStatus:
		case ipc.CmdSay:
			spoke := false
			if !mic.Aside(func() { spoke = s.deps.Speech.Speak(msg.Text) }) {
				return ipc.Reply{Error: "listening", State: s.State().String()}
			}
			if !spoke {
				return ipc.Reply{Error: "busy or empty", State: s.State().String()}
			}
		case ipc.CmdText:
			if !q.Inject(msg.Text) {
				return ipc.Reply{Error: "empty text", State: s.State().String()}
			}
		case ipc.CmdInterrupt:
			s.deps.Speech.Interrupt()
		case ipc.CmdQuit:
			quit()
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return ipc.Reply{Error: "unknown command " + msg.Cmd}
		}
		return ipc.Reply{OK: true, State: s.State().String()}
	}
}
