// internal/sequencer/script.go
package sequencer

import (
	"context"
	"fmt"

	"v850-service/internal/bridge"
)

// step is one bridge control request.
type step struct {
	name string
	run  func(ctx context.Context, b bridge.Bridge) error
}

func lineControl(cfg bridge.LineConfig) step {
	return step{"line_control " + cfg.String(), func(ctx context.Context, b bridge.Bridge) error {
		return b.SetLineControl(ctx, cfg)
	}}
}

func errCharOff() step {
	return step{"err_char off", func(ctx context.Context, b bridge.Bridge) error {
		return b.SetErrChar(ctx, false, 0)
	}}
}

func dtrRTS(dtr, rts bool) step {
	return step{fmt.Sprintf("dtr_rts %t/%t", dtr, rts), func(ctx context.Context, b bridge.Bridge) error {
		return b.SetDTRRTS(ctx, dtr, rts)
	}}
}

func xonXoff(xon, xoff byte) step {
	return step{fmt.Sprintf("xon_xoff %02x/%02x", xon, xoff), func(ctx context.Context, b bridge.Bridge) error {
		return b.SetXonXoffChars(ctx, xon, xoff)
	}}
}

// handshake is the line/err-char/xon-xoff exchange the bridge expects
// around every modem line change.
func handshake(cfg bridge.LineConfig, xon, xoff byte) []step {
	return []step{
		lineControl(cfg), errCharOff(),
		xonXoff(xon, xoff), errCharOff(),
		lineControl(cfg), errCharOff(),
	}
}

// powerOnScript follows open and the first DTR/RTS assertion. It ends with
// DTR low and RTS high, the target's flash-mode strapping.
func powerOnScript(cfg bridge.LineConfig) []step {
	var steps []step
	steps = append(steps, lineControl(cfg), errCharOff())
	steps = append(steps, dtrRTS(true, false), dtrRTS(false, false))
	steps = append(steps, handshake(cfg, 0xFA, 0xCF)...)
	steps = append(steps, lineControl(cfg), errCharOff())
	steps = append(steps, dtrRTS(false, false))
	steps = append(steps, handshake(cfg, 0xFD, 0xFF)...)
	steps = append(steps, lineControl(cfg), errCharOff())
	steps = append(steps, dtrRTS(false, false), dtrRTS(false, false))
	steps = append(steps, handshake(cfg, 0x00, 0x00)...)
	steps = append(steps, lineControl(cfg), errCharOff())
	steps = append(steps, dtrRTS(false, true), dtrRTS(false, true))
	steps = append(steps, handshake(cfg, 0x01, 0x00)...)
	return steps
}

// baudSwitchScript reprograms the bridge after the target accepted a new rate.
func baudSwitchScript(cfg bridge.LineConfig) []step {
	var steps []step
	steps = append(steps, lineControl(cfg), errCharOff())
	steps = append(steps, dtrRTS(false, true), dtrRTS(false, true))
	steps = append(steps, handshake(cfg, 0x09, 0x00)...)
	return steps
}

func (s *Sequencer) runScript(ctx context.Context, steps []step) error {
	for _, st := range steps {
		if err := st.run(ctx, s.bridge); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return nil
}
