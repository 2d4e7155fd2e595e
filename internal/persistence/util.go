package persistence

import (
	"math"
	"time"

	"github.com/vipshop/vire/internal/buf"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

func floatBits(f float64) uint64 { return math.Float64bits(f) }

func bitsFloat(b uint64) float64 { return math.Float64frombits(b) }

func bufFromBytes(b []byte) *buf.Buffer { return buf.FromBytes(b) }
