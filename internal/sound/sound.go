// Package sound plays the alarm and warning cues. Playback is fire-and-forget:
// failures are logged at debug level and never reach the caller.
package sound

// Cue names shared with presentation clients.
const (
	CueAlarm     = "alarm"
	CueAlarmStop = "alarm_stop"
	CueWarning   = "warning"
)

// Player plays the two audio assets. Implementations must be safe for
// concurrent use and make repeated calls idempotent.
type Player interface {
	PlayAlarm()
	StopAlarm()
	PlayWarning()
}

// Nop is a Player that does nothing.
type Nop struct{}

func (Nop) PlayAlarm()   {}
func (Nop) StopAlarm()   {}
func (Nop) PlayWarning() {}

// Multi fans every call out to all players.
type Multi []Player

// PlayAlarm starts the alarm on every player.
func (m Multi) PlayAlarm() {
	for _, p := range m {
		p.PlayAlarm()
	}
}

// StopAlarm stops the alarm on every player.
func (m Multi) StopAlarm() {
	for _, p := range m {
		p.StopAlarm()
	}
}

// PlayWarning plays the warning tone on every player.
func (m Multi) PlayWarning() {
	for _, p := range m {
		p.PlayWarning()
	}
}

// Broadcaster delivers a cue to connected clients.
type Broadcaster interface {
	BroadcastCue(cue string)
}

// CuePlayer forwards cues to clients that render audio themselves.
type CuePlayer struct {
	b Broadcaster
}

// NewCuePlayer creates a player that broadcasts cues through b.
func NewCuePlayer(b Broadcaster) *CuePlayer {
	return &CuePlayer{b: b}
}

func (c *CuePlayer) PlayAlarm()   { c.b.BroadcastCue(CueAlarm) }
func (c *CuePlayer) StopAlarm()   { c.b.BroadcastCue(CueAlarmStop) }
func (c *CuePlayer) PlayWarning() { c.b.BroadcastCue(CueWarning) }
