package dialogue

import (
	"github.com/teslashibe/go-doorbell/pkg/intent"
	"github.com/teslashibe/go-doorbell/pkg/relay"
)

func (c *Controller) actionTable() map[intent.Intent]func() {
	p, t := c.phrases, c.timing
	return map[intent.Intent]func(){
		intent.LightOn:      func() { c.setLamp(true) },
		intent.LightOff:     func() { c.setLamp(false) },
		intent.PackageOffer: func() { c.ask(intent.PackageOffer) },
		intent.RegisteredLetter: func() {
			c.notify(p.LetterNote)
			c.openDoor(p.LetterReply, t.Letter)
		},
		intent.PartyGuests: func() {
			c.notify(p.PartyNote)
			c.openDoor(p.PartyReply, t.Party)
		},
		intent.Visit: func() {
			c.notify(p.VisitNote)
			c.openDoor(p.VisitReply, t.Visit)
		},
		intent.UnsolicitedOffer: func() { c.hangupAfter(p.UnsolicitedReply, t.Decline) },
		intent.Hangup:           func() { c.hangupAfter(p.Goodbye, t.Goodbye) },
	}
}

// setLamp toggles the porch light through its relay. The relay is a
// toggle, so it is only pulsed when the state actually changes.
func (c *Controller) setLamp(on bool) {
	if c.lampOn == on {
		if on {
			c.speak(c.phrases.LightAlreadyOn)
		} else {
			c.speak(c.phrases.LightAlreadyOff)
		}
		return
	}
	if !c.actuate(relay.Light) {
		c.speak(c.phrases.LightFailed)
		return
	}
	c.lampOn = on
	if on {
		c.speak(c.phrases.LightOn)
	} else {
		c.speak(c.phrases.LightOff)
	}
}

func (c *Controller) packageLeft() {
	c.notify(c.phrases.PackageLeftNote)
	c.openDoor(c.phrases.PackageLeft, c.timing.PackageOpen)
}

func (c *Controller) packageDeclined() {
	c.notify(c.phrases.PackageDeclinedNote)
	c.hangupAfter(c.phrases.PackageDeclined, c.timing.PackageHangup)
}
