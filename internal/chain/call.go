/**
 * @description
 * Call and Batch value types for the CityForge execution environment.
 * A Batch is an ordered list of calls executed all-or-nothing by a vault.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common
 */

package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrLengthMismatch = errors.New("batch arrays must have equal length")

// Call describes a single invocation of a target contract.
type Call struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// Batch is an ordered list of calls. Construction has no side effects;
// only execution through a vault mutates state.
type Batch []Call

// NewBatch builds a Batch from parallel target/value/payload arrays.
func NewBatch(targets []common.Address, values []*big.Int, payloads [][]byte) (Batch, error) {
	if len(targets) != len(values) || len(targets) != len(payloads) {
		return nil, ErrLengthMismatch
	}
	batch := make(Batch, 0, len(targets))
	for i := range targets {
		batch = append(batch, Call{
			Target: targets[i],
			Value:  values[i],
			Data:   payloads[i],
		})
	}
	return batch, nil
}

// Arrays decomposes the batch back into parallel arrays.
func (b Batch) Arrays() (targets []common.Address, values []*big.Int, payloads [][]byte) {
	targets = make([]common.Address, len(b))
	values = make([]*big.Int, len(b))
	payloads = make([][]byte, len(b))
	for i, call := range b {
		targets[i] = call.Target
		values[i] = call.Value
		payloads[i] = call.Data
	}
	return targets, values, payloads
}

// ValueSum returns the total native value moved by the batch.
func (b Batch) ValueSum() *big.Int {
	sum := new(big.Int)
	for _, call := range b {
		if call.Value != nil {
			sum.Add(sum, call.Value)
		}
	}
	return sum
}
