package chain

import "time"

const TimestampLayout = "2006-01-02T15:04:05.000Z"

type Config struct {
	GenesisTime    int64  `conf:"default:1606824023"`
	SecondsPerSlot uint64 `conf:"default:12"`
	SlotsPerEpoch  uint64 `conf:"default:32"`
}

// Mainnet returns the beacon chain mainnet parameters.
func Mainnet() Config {
	return Config{
		GenesisTime:    1606824023,
		SecondsPerSlot: 12,
		SlotsPerEpoch:  32,
	}
}

// Clock converts slots to epochs and wall clock time. It holds no state besides the chain parameters.
type Clock struct {
	genesisTime    int64
	secondsPerSlot uint64
	slotsPerEpoch  uint64
}

func NewClock(cfg Config) *Clock {
	return &Clock{
		genesisTime:    cfg.GenesisTime,
		secondsPerSlot: cfg.SecondsPerSlot,
		slotsPerEpoch:  cfg.SlotsPerEpoch,
	}
}

func (c *Clock) SlotsPerEpoch() uint64 {
	return c.slotsPerEpoch
}

func (c *Clock) EpochOf(slot uint64) uint64 {
	return slot / c.slotsPerEpoch
}

func (c *Clock) UnixTimeOf(slot uint64) int64 {
	return c.genesisTime + int64(slot*c.secondsPerSlot)
}

func (c *Clock) TimeOf(slot uint64) time.Time {
	return time.Unix(c.UnixTimeOf(slot), 0).UTC()
}

// FormatTime renders t in UTC with millisecond precision and a literal Z suffix.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func (c *Clock) Timestamp(slot uint64) string {
	return FormatTime(c.TimeOf(slot))
}
