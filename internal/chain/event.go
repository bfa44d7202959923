package chain

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/suspectuso/chainpay/internal/payment"
)

// PaymentReceivedSignature is the contract event:
//
//	event PaymentReceived(bytes32 indexed paymentId, address indexed from, uint256 amount, uint256 timestamp)
const PaymentReceivedSignature = "PaymentReceived(bytes32,address,uint256,uint256)"

// PaymentReceivedTopic is topic0 of PaymentReceived logs
var PaymentReceivedTopic = crypto.Keccak256Hash([]byte(PaymentReceivedSignature))

// DecodeLog turns a PaymentReceived log into an Event. Errors wrap payment.ErrDecode.
func DecodeLog(l *types.Log) (payment.Event, error) {
	if l.Removed {
		return payment.Event{}, fmt.Errorf("%w: log removed by reorg", payment.ErrDecode)
	}
	if len(l.Topics) != 3 {
		return payment.Event{}, fmt.Errorf("%w: want 3 topics, got %d", payment.ErrDecode, len(l.Topics))
	}
	if l.Topics[0] != PaymentReceivedTopic {
		return payment.Event{}, fmt.Errorf("%w: unexpected topic %s", payment.ErrDecode, l.Topics[0].Hex())
	}
	if len(l.Data) != 64 {
		return payment.Event{}, fmt.Errorf("%w: want 64 data bytes, got %d", payment.ErrDecode, len(l.Data))
	}

	ts := new(big.Int).SetBytes(l.Data[32:64])
	if ts.Cmp(big.NewInt(math.MaxInt64)) > 0 {
		return payment.Event{}, fmt.Errorf("%w: timestamp overflows", payment.ErrDecode)
	}

	return payment.Event{
		PaymentHash: payment.NormalizeHash(l.Topics[1].Hex()),
		FromAddress: common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
		Amount:      new(big.Int).SetBytes(l.Data[:32]),
		BlockNumber: l.BlockNumber,
		Timestamp:   time.Unix(int64(ts.Uint64()), 0).UTC(),
		TxHash:      l.TxHash.Hex(),
		LogIndex:    l.Index,
	}, nil
}
