package cdrom

// execCommand dispatches a command byte written to register 1 (index 0),
// consuming the parameter FIFO and staging a response. Unless noted, every
// command acknowledges with INT3 immediately and some follow up later with
// INT1/INT2 once the drive mechanism settles (spec.md section 4.7).
func (c *Controller) execCommand(cmd uint8) {
	params := c.popParams()
	switch cmd {
	case 0x01: // GetStat
		c.pushResponse(c.st.encode())
		c.raiseInterrupt(int3Acknowledge)
	case 0x02: // SetLoc
		if len(params) >= 3 {
			c.seekTo = MSF{
				M: int(BCDToDec(params[0])),
				S: int(BCDToDec(params[1])),
				F: int(BCDToDec(params[2])),
			}
		}
		c.pushResponse(c.st.encode())
		c.raiseInterrupt(int3Acknowledge)
	case 0x03: // Play (SPEC_FULL CD-DA extension)
		c.playTrack = 0
		if len(params) >= 1 {
			c.playTrack = int(params[0])
		}
		c.curPos = c.trackStart(c.playTrack)
		c.st.playing = true
		c.state = Playing
		c.pushResponse(c.st.encode())
		c.raiseInterrupt(int3Acknowledge)
	case 0x06: // ReadN
		c.startRead()
	case 0x1B: // ReadS
		c.startRead()
	case 0x09: // Pause
		c.state = Idle
		c.st.reading = false
		c.st.playing = false
		c.pushResponse(c.st.encode())
		c.raiseInterrupt(int3Acknowledge)
		c.raiseInterrupt(int2CommandComplete)
	case 0x0A: // Init
		c.state = Idle
		c.st = status{motor: true}
		c.mode = 0
		c.pushResponse(c.st.encode())
		c.raiseInterrupt(int3Acknowledge)
		c.raiseInterrupt(int2CommandComplete)
	case 0x0E: // SetMode
		if len(params) >= 1 {
			c.mode = params[0]
		}
		c.pushResponse(c.st.encode())
		c.raiseInterrupt(int3Acknowledge)
	case 0x15: // SeekL
		c.state = Seeking
		c.st.seeking = true
		c.seekCycleCounter = 0
		c.pushResponse(c.st.encode())
		c.raiseInterrupt(int3Acknowledge)
	case 0x19: // Test
		c.execTest(params)
	case 0x1A: // GetID
		c.execGetID()
	case 0x1E: // ReadTOC
		c.pushResponse(c.st.encode())
		c.raiseInterrupt(int3Acknowledge)
		c.raiseInterrupt(int2CommandComplete)
	default:
		c.pushResponse(c.st.encode() | 1)
		c.raiseInterrupt(int4CommandError)
	}
}

func (c *Controller) startRead() {
	c.curPos = c.seekTo
	c.state = Reading
	c.st.reading = true
	c.readCycleCounter = 0
	c.pushResponse(c.st.encode())
	c.raiseInterrupt(int3Acknowledge)
}

func (c *Controller) execTest(params []uint8) {
	if len(params) == 0 {
		c.pushResponse(c.st.encode())
		c.raiseInterrupt(int3Acknowledge)
		return
	}
	switch params[0] {
	case 0x20: // firmware date/version
		c.pushResponse(0x98, 0x08, 0x07, 0xC3)
	case 0x04: // start SCEx reading
		c.pushResponse(c.st.encode())
	default:
		c.pushResponse(c.st.encode())
	}
	c.raiseInterrupt(int3Acknowledge)
}

func (c *Controller) execGetID() {
	if c.disc == nil {
		c.st.idErr = true
		c.pushResponse(0x08, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
		c.raiseInterrupt(int5SeekError)
		return
	}
	c.pushResponse(c.st.encode(), 0x00, 0x20, 0x00, 'S', 'C', 'E', 'A')
	c.raiseInterrupt(int3Acknowledge)
	c.raiseInterrupt(int2CommandComplete)
}

func (c *Controller) trackStart(n int) MSF {
	if c.disc == nil {
		return MSF{}
	}
	for _, t := range c.disc.Tracks {
		if t.Number == n {
			return t.StartMSF
		}
	}
	if len(c.disc.Tracks) > 0 {
		return c.disc.Tracks[0].StartMSF
	}
	return MSF{}
}

// DMARead satisfies dma.Endpoint for channel 3: drains one byte at a time
// from the data FIFO, packed little-endian four to a word as DMA pulls
// 32-bit units off the bus.
func (c *Controller) DMARead() uint32 {
	var word uint32
	for i := 0; i < 4; i++ {
		var b uint8
		if len(c.dataFIFO) > 0 {
			b = c.dataFIFO[0]
			c.dataFIFO = c.dataFIFO[1:]
		}
		word |= uint32(b) << (8 * uint(i))
	}
	return word
}

// DMAWrite satisfies dma.Endpoint for channel 3 though the real drive never
// accepts CD-ROM data via DMA writes; present for interface completeness.
func (c *Controller) DMAWrite(word uint32) {}
