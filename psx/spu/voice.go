package spu

// adsrPhase is one of the four envelope stages plus Off, per spec.md
// section 4.9.
type adsrPhase int

const (
	phaseAttack adsrPhase = iota
	phaseDecay
	phaseSustain
	phaseRelease
	phaseOff
)

// adsrMode is the rate-shape pair (linear/exponential, increase/decrease)
// packed into the low bits of the rate fields.
type adsrMode struct {
	rate   int
	expo   bool
	decr   bool
}

type envelope struct {
	attackRate   adsrMode
	decayRate    int // always exponential decrease
	sustainLevel int // 0-15, compared as (level+1)<<11
	sustainRate  adsrMode
	releaseRate  adsrMode

	phase adsrPhase
	level uint16 // 0..32767
}

// adsrLo/adsrHi encode the same 32-bit ADSR config the hardware exposes
// as two 16-bit halves; setAdsrLo/setAdsrHi decode writes into the
// envelope's rate/mode fields.
func (v *voice) adsrLo() uint16 {
	var w uint16
	w |= uint16(v.adsr.sustainLevel & 0xF)
	w |= uint16(v.adsr.decayRate&0xF) << 4
	w |= uint16(v.adsr.attackRate.rate&0x7F) << 8
	if v.adsr.attackRate.expo {
		w |= 1 << 15
	}
	return w
}

func (v *voice) setAdsrLo(w uint16) {
	v.adsr.sustainLevel = int(w & 0xF)
	v.adsr.decayRate = int((w >> 4) & 0xF)
	v.adsr.attackRate.rate = int((w >> 8) & 0x7F)
	v.adsr.attackRate.expo = w&(1<<15) != 0
}

func (v *voice) adsrHi() uint16 {
	var w uint16
	w |= uint16(v.adsr.releaseRate.rate & 0x1F)
	if v.adsr.releaseRate.expo {
		w |= 1 << 5
	}
	w |= uint16(v.adsr.sustainRate.rate&0x7F) << 6
	if v.adsr.sustainRate.decr {
		w |= 1 << 13
	}
	if v.adsr.sustainRate.expo {
		w |= 1 << 14
	}
	return w
}

func (v *voice) setAdsrHi(w uint16) {
	v.adsr.releaseRate.rate = int(w & 0x1F)
	v.adsr.releaseRate.expo = w&(1<<5) != 0
	v.adsr.releaseRate.decr = true
	v.adsr.sustainRate.rate = int((w >> 6) & 0x7F)
	v.adsr.sustainRate.decr = w&(1<<13) != 0
	v.adsr.sustainRate.expo = w&(1<<14) != 0
}

// adpcmState tracks the 16-byte-block decoder's filter history and its
// position within the current decoded block.
type adpcmState struct {
	h0, h1   int32
	blockPos int // 0..27, index into the 28 decoded samples of the current block
	decoded  [28]int16
}

// voice is one of the SPU's 24 ADPCM channels, per spec.md section 3.
type voice struct {
	id int

	volumeL, volumeR int16
	adsr             envelope

	sampleRate  uint16 // 4.12 fixed-point pitch, 0x1000 == native rate
	startAddr   uint16 // SPU RAM address / 8
	repeatAddr  uint16
	currentAddr uint32 // byte address within SPU RAM

	pitchCounter uint32 // 16.16 fixed point sample-position accumulator

	adpcm adpcmState

	enabled    bool
	loopFlag   bool
	finalBlock bool

	spu *SPU
}

// keyOn implements spec.md section 3's voice activation: reset the ADPCM
// decoder, seek to start_addr*8, enter Attack.
func (v *voice) keyOn() {
	v.currentAddr = uint32(v.startAddr) * 8
	v.adpcm = adpcmState{}
	v.adpcm.blockPos = 28 // force an immediate block decode
	v.adsr.phase = phaseAttack
	v.adsr.level = 0
	v.enabled = true
	v.finalBlock = false
	v.pitchCounter = 0
}

// keyOff forces Release regardless of the current phase.
func (v *voice) keyOff() {
	v.adsr.phase = phaseRelease
}

// nextSample decodes (refilling blocks as needed), advances the pitch
// counter and the ADSR envelope, and returns one signed 16-bit ADPCM
// sample. Callers that have this voice's noise-enable bit set substitute
// the shared noise generator's output instead, per spec.md section 4.9.
func (v *voice) nextSample() int16 {
	if !v.enabled {
		return 0
	}

	if v.adpcm.blockPos >= 28 && !v.refillBlock() {
		return 0
	}
	raw := v.adpcm.decoded[v.adpcm.blockPos]

	v.pitchCounter += uint32(v.sampleRate) << 4
	for v.pitchCounter >= 0x1_0000 {
		v.pitchCounter -= 0x1_0000
		v.adpcm.blockPos++
		if v.adpcm.blockPos >= 28 && !v.refillBlock() {
			return raw
		}
	}

	v.advanceEnvelope()
	if v.adsr.phase == phaseOff {
		v.enabled = false
	}

	return raw
}

// refillBlock decodes the next ADPCM block, or shuts the voice down when
// the previous block carried a loop-end flag without loop-repeat: the
// remaining samples of that block have now been consumed.
func (v *voice) refillBlock() bool {
	if v.finalBlock {
		v.enabled = false
		v.adsr.phase = phaseOff
		v.adsr.level = 0
		return false
	}
	v.decodeBlock()
	return true
}

// decodeBlock reads the next 16-byte ADPCM block from SPU RAM, producing
// 28 samples, and handles the loop-end/loop-repeat flags.
func (v *voice) decodeBlock() {
	ram := v.spu.RAM()
	base := v.currentAddr & RAMMask
	header := ram[base]
	flags := ram[(base+1)&RAMMask]

	shift := uint(header & 0x0F)
	if shift > 12 {
		shift = 9
	}
	filter := int((header >> 4) & 0x03)

	loopEnd := flags&0x01 != 0
	loopRepeat := flags&0x02 != 0

	for i := 0; i < 28; i++ {
		byteIdx := (base + 2 + uint32(i/2)) & RAMMask
		raw := ram[byteIdx]
		var nibble uint8
		if i%2 == 0 {
			nibble = raw & 0x0F
		} else {
			nibble = raw >> 4
		}
		sample := int32(int8(nibble<<4)) >> 4 // sign-extend 4 bits
		sample = (sample << 12) >> shift

		predicted := applyFilter(sample, filter, v.adpcm.h0, v.adpcm.h1)
		clamped := clampI32(predicted, -32768, 32767)
		v.adpcm.h1 = v.adpcm.h0
		v.adpcm.h0 = clamped
		v.adpcm.decoded[i] = int16(clamped)
	}
	v.adpcm.blockPos = 0

	if loopEnd {
		if loopRepeat {
			v.currentAddr = uint32(v.repeatAddr) * 8
		} else {
			v.finalBlock = true
		}
	} else {
		v.currentAddr += 16
	}
}

// applyFilter runs one shifted sample through the block's IIR predictor:
// four fixed shift expressions over the two history samples.
func applyFilter(s int32, filter int, h0, h1 int32) int32 {
	switch filter {
	case 1:
		return s + h0 + (-h0 >> 1)
	case 2:
		return s + 2*h0 + ((-3 * h0) >> 1) - h1 + (h1 >> 1)
	case 3:
		return s + 2*h0 - ((5 * h0) >> 2) + 2*h1 - (h1 >> 1)
	default:
		return s
	}
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// advanceEnvelope steps the ADSR state machine by one sample, per
// spec.md section 4.9's phase table.
func (v *voice) advanceEnvelope() {
	e := &v.adsr
	switch e.phase {
	case phaseAttack:
		step := attackStep(e.attackRate, e.level)
		newLevel := int32(e.level) + step
		if newLevel >= 32767 {
			e.level = 32767
			e.phase = phaseDecay
		} else {
			e.level = uint16(newLevel)
		}
	case phaseDecay:
		step := expoStep(e.decayRate, e.level)
		newLevel := int32(e.level) - step
		target := int32((e.sustainLevel + 1) << 11)
		if newLevel <= target {
			e.level = uint16(clampI32(target, 0, 32767))
			e.phase = phaseSustain
		} else {
			e.level = uint16(newLevel)
		}
	case phaseSustain:
		step := rateStep(e.sustainRate, e.level)
		if e.sustainRate.decr {
			newLevel := int32(e.level) - step
			if newLevel <= 0 {
				e.level = 0
				e.phase = phaseOff
			} else {
				e.level = uint16(newLevel)
			}
		}
		// Increasing sustain (decr==false) holds at the current level in
		// this model: spec.md notes this spec uses monotonic decrease.
	case phaseRelease:
		step := rateStep(e.releaseRate, e.level)
		newLevel := int32(e.level) - step
		if newLevel <= 0 {
			e.level = 0
			e.phase = phaseOff
		} else {
			e.level = uint16(newLevel)
		}
	}
}

// attackStep implements the linear-or-exponential Attack rate, clamped to
// at least 1 near full scale so the envelope always reaches 32767.
func attackStep(m adsrMode, level uint16) int32 {
	step := (32767 * int32(m.rate)) / 6400
	if step < 1 {
		step = 1
	}
	if m.expo && level > 0x6000 {
		// Exponential-region slowdown used by the real Attack curve above
		// 3/4 scale; approximated here as a straightforward rate scale.
		step = (int32(m.rate) * (32767 - int32(level))) >> 15
		if step < 1 {
			step = 1
		}
	}
	return step
}

func expoStep(rate int, level uint16) int32 {
	step := (int32(rate) * int32(level)) >> 15
	if step < 1 {
		step = 1
	}
	return step
}

func rateStep(m adsrMode, level uint16) int32 {
	if m.expo {
		return expoStep(m.rate, level)
	}
	step := (32767 * int32(m.rate)) / 6400
	if step < 1 {
		step = 1
	}
	return step
}
