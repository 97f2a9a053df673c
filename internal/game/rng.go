package game

import "math/rand"

// randIntn is the single seam the tile shuffle goes through, so tests can
// pin a deterministic order.
var randIntn = rand.Intn
