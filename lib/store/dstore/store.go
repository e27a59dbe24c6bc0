package dstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/clock"
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4/logger"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the distributed store.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
	clock   clock.Clock
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. The clock is read on the proposing node, the state machine clamps the reading with the
// replicated ledger clock.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration, clk clock.Clock) store.IStore {
	if clk == nil {
		clk = clock.System()
	}
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
		clock:   clk,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose.
// It returns the result data of the state machine, or a *store.Error if an error occurs.
func (s *storeImpl) write(cmd internal.Command) ([]byte, error) {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return nil, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return res.Data, nil
	}
	return nil, store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to Query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// Is the read operation fails due to a system busy error, the function retries up to 5 times.
//
// It returns the response of type R and a error (nil on success).
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		// Query the state machine, use StaleRead if stale is set otherwise use SyncRead (default)
		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var storeErr *store.Error
			if errors.As(err, &storeErr) {
				return zero, storeErr
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Register(docHash, owner, description string) (registry.DocumentProof, error) {
	data, err := s.write(internal.Command{
		Type:        internal.CommandTRegister,
		Timestamp:   s.clock.Now(),
		DocHash:     docHash,
		Owner:       owner,
		Description: description,
	})
	if err != nil {
		return registry.DocumentProof{}, err
	}

	proof, err := registry.DecodeProof(data)
	if err != nil {
		return registry.DocumentProof{}, store.NewError(store.RetCInternalError, err.Error())
	}
	return proof, nil
}

func (s *storeImpl) Verify(docHash string) (registry.DocumentProof, error) {
	proof, found, err := s.GetProof(docHash)
	if err != nil {
		return registry.DocumentProof{}, err
	}
	if !found {
		return registry.NotFound(), nil
	}
	return proof, nil
}

func (s *storeImpl) GetProof(docHash string) (registry.DocumentProof, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type:    internal.QueryTGetProof,
		DocHash: docHash,
	}, false)
	if err != nil {
		return registry.DocumentProof{}, false, err
	}
	return res.Proof, res.Found, nil
}

func (s *storeImpl) GetStats() (registry.ProofStats, error) {
	return read[registry.ProofStats](s, internal.Query{
		Type: internal.QueryTGetStats,
	}, false)
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}
