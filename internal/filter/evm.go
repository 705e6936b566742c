package filter

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// receiptFetchConcurrency bounds parallel eth_getTransactionReceipt calls
// per filtered block.
const receiptFetchConcurrency = 8

// EVMReceiptFetcher is the slice of the EVM client the filter needs.
type EVMReceiptFetcher interface {
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*models.EVMReceipt, error)
}

// EVMFilter matches monitors against EVM blocks: it fetches receipts,
// decodes logs and calldata through the monitors' contract ABIs, and applies
// the condition combining policy per transaction.
type EVMFilter struct {
	logger *zap.Logger

	abiMu    sync.Mutex
	abiCache map[string]*abi.ABI
}

// NewEVMFilter creates an EVM filter with an empty ABI cache.
func NewEVMFilter(logger *zap.Logger) *EVMFilter {
	return &EVMFilter{
		logger:   logger.Named("evm_filter"),
		abiCache: make(map[string]*abi.ABI),
	}
}

// FilterBlock evaluates every monitor against every transaction of the block
// and returns the matches. Transactions whose receipt cannot be fetched are
// skipped with a warning; a match is only emitted when at least one of the
// monitor's addresses is involved in the transaction.
func (f *EVMFilter) FilterBlock(ctx context.Context, client EVMReceiptFetcher, network *models.Network, block *models.EVMBlock, monitors []models.Monitor) ([]models.MonitorMatch, error) {
	if block == nil {
		return nil, fmt.Errorf("%w: nil EVM block for network %q", ErrBlockTypeMismatch, network.Slug)
	}
	if len(monitors) == 0 || len(block.Transactions) == 0 {
		return nil, nil
	}

	receipts, err := f.fetchReceipts(ctx, client, block)
	if err != nil {
		return nil, err
	}

	var matches []models.MonitorMatch
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		receipt, ok := receipts[tx.Hash]
		if !ok {
			continue
		}
		for mi := range monitors {
			monitor := &monitors[mi]
			if match := f.matchTransaction(monitor, network, tx, receipt); match != nil {
				matches = append(matches, models.MonitorMatch{EVM: match})
			}
		}
	}
	return matches, nil
}

// fetchReceipts retrieves receipts for every transaction in the block in
// parallel, keeping block order irrelevant by keying on hash. Individual
// failures are logged and the transaction dropped from matching.
func (f *EVMFilter) fetchReceipts(ctx context.Context, client EVMReceiptFetcher, block *models.EVMBlock) (map[common.Hash]*models.EVMReceipt, error) {
	receipts := make(map[common.Hash]*models.EVMReceipt, len(block.Transactions))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(receiptFetchConcurrency)
	for i := range block.Transactions {
		hash := block.Transactions[i].Hash
		g.Go(func() error {
			receipt, err := client.GetTransactionReceipt(ctx, hash)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.logger.Warn("skipping transaction, receipt unavailable",
					zap.String("tx_hash", hash.Hex()),
					zap.Uint64("block", block.BlockNumber()),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			receipts[hash] = receipt
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: fetching receipts for block %d: %v", ErrNetwork, block.BlockNumber(), err)
	}
	return receipts, nil
}

// matchTransaction applies one monitor to one transaction. Returns nil when
// the monitor does not match.
func (f *EVMFilter) matchTransaction(monitor *models.Monitor, network *models.Network, tx *models.EVMTransaction, receipt *models.EVMReceipt) *models.EVMMonitorMatch {
	if !f.monitorAddressInvolved(monitor, tx, receipt) {
		return nil
	}

	events := f.decodeEvents(monitor, receipt)
	functions := f.decodeFunctionCall(monitor, tx)

	conds := &monitor.MatchConditions
	matchedEvents, eventArgs := matchSignatureConditions(conds.Events, events)
	matchedFunctions, functionArgs := matchFunctionConditions(conds.Functions, functions)
	matchedTxs := matchTransactionConditions(conds.Transactions, tx, receipt)

	if !combineMatches(conds, len(matchedEvents) > 0, len(matchedFunctions) > 0, len(matchedTxs) > 0) {
		return nil
	}

	match := &models.EVMMonitorMatch{
		Monitor:     monitor.StripSpecs(),
		Transaction: *tx,
		Receipt:     *receipt,
		NetworkSlug: network.Slug,
		MatchedOn: models.MatchConditions{
			Transactions: matchedTxs,
			Events:       matchedEvents,
			Functions:    matchedFunctions,
		},
	}
	if len(eventArgs) > 0 || len(functionArgs) > 0 {
		match.MatchedOnArgs = &models.MatchArguments{Events: eventArgs, Functions: functionArgs}
	}
	return match
}

// monitorAddressInvolved reports whether one of the monitor's addresses
// appears among the transaction's involved addresses (from, to, and every
// log emitter). A monitor without addresses is unscoped and always involved.
func (f *EVMFilter) monitorAddressInvolved(monitor *models.Monitor, tx *models.EVMTransaction, receipt *models.EVMReceipt) bool {
	if len(monitor.Addresses) == 0 {
		return true
	}
	involved := make([]string, 0, 2+len(receipt.Logs))
	involved = append(involved, tx.From.Hex())
	if tx.To != nil {
		involved = append(involved, tx.To.Hex())
	}
	for _, l := range receipt.Logs {
		involved = append(involved, l.Address.Hex())
	}
	for _, a := range monitor.Addresses {
		for _, addr := range involved {
			if models.SameAddress(a.Address, addr) {
				return true
			}
		}
	}
	return false
}

// decodeEvents decodes receipt logs emitted by monitored contracts through
// their ABIs into signature/argument occurrences. Logs from unmonitored
// addresses or without a known topic0 are skipped.
func (f *EVMFilter) decodeEvents(monitor *models.Monitor, receipt *models.EVMReceipt) []models.MatchParamsMap {
	var out []models.MatchParamsMap
	for _, l := range receipt.Logs {
		spec := f.specForAddress(monitor, l.Address.Hex())
		if spec == nil || len(l.Topics) == 0 {
			continue
		}
		event, err := spec.EventByID(l.Topics[0])
		if err != nil {
			continue
		}
		args, err := decodeEventArgs(event, &l)
		if err != nil {
			f.logger.Debug("undecodable log",
				zap.String("event", event.Sig),
				zap.String("contract", l.Address.Hex()),
				zap.Error(err))
			continue
		}
		out = append(out, models.MatchParamsMap{
			Signature:    event.Sig,
			Args:         args,
			HexSignature: event.ID.Hex(),
		})
	}
	return out
}

// decodeFunctionCall decodes the transaction calldata when the target is a
// monitored contract with an ABI and the selector resolves to a method.
func (f *EVMFilter) decodeFunctionCall(monitor *models.Monitor, tx *models.EVMTransaction) []models.MatchParamsMap {
	if tx.To == nil || len(tx.Input) < 4 {
		return nil
	}
	spec := f.specForAddress(monitor, tx.To.Hex())
	if spec == nil {
		return nil
	}
	method, err := spec.MethodById(tx.Input[:4])
	if err != nil {
		return nil
	}
	values, err := method.Inputs.Unpack(tx.Input[4:])
	if err != nil {
		f.logger.Debug("undecodable calldata",
			zap.String("method", method.Sig),
			zap.String("tx_hash", tx.Hash.Hex()),
			zap.Error(err))
		return nil
	}
	args := make([]models.MatchParam, 0, len(values))
	for i, input := range method.Inputs {
		args = append(args, models.MatchParam{
			Name:  argName(input.Name, i),
			Value: formatABIValue(values[i]),
			Kind:  input.Type.String(),
		})
	}
	return []models.MatchParamsMap{{Signature: method.Sig, Args: args}}
}

// specForAddress returns the parsed ABI of the monitored address, or nil
// when the address is not monitored or carries no spec. Parsed ABIs are
// cached across blocks.
func (f *EVMFilter) specForAddress(monitor *models.Monitor, address string) *abi.ABI {
	for _, a := range monitor.Addresses {
		if !models.SameAddress(a.Address, address) || len(a.ABI) == 0 {
			continue
		}
		key := models.NormalizeAddress(a.Address) + "/" + monitor.Name

		f.abiMu.Lock()
		spec, ok := f.abiCache[key]
		f.abiMu.Unlock()
		if ok {
			return spec
		}

		parsed, err := abi.JSON(strings.NewReader(string(a.ABI)))
		if err != nil {
			f.logger.Warn("unparseable contract ABI",
				zap.String("monitor", monitor.Name),
				zap.String("address", a.Address),
				zap.Error(err))
			return nil
		}
		f.abiMu.Lock()
		f.abiCache[key] = &parsed
		f.abiMu.Unlock()
		return &parsed
	}
	return nil
}

// decodeEventArgs decodes a log into the event's parameter list in ABI
// declaration order: indexed inputs from topics, the rest from data.
func decodeEventArgs(event *abi.Event, l *models.EVMLog) ([]models.MatchParam, error) {
	nonIndexed, err := event.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, err
	}

	args := make([]models.MatchParam, 0, len(event.Inputs))
	topicIdx, dataIdx := 1, 0
	for i, input := range event.Inputs {
		param := models.MatchParam{
			Name:    argName(input.Name, i),
			Kind:    input.Type.String(),
			Indexed: input.Indexed,
		}
		if input.Indexed {
			if topicIdx >= len(l.Topics) {
				return nil, fmt.Errorf("log has %d topics, event %s expects more", len(l.Topics), event.Sig)
			}
			param.Value = formatTopicValue(input.Type, l.Topics[topicIdx])
			topicIdx++
		} else {
			if dataIdx >= len(nonIndexed) {
				return nil, fmt.Errorf("log data too short for event %s", event.Sig)
			}
			param.Value = formatABIValue(nonIndexed[dataIdx])
			dataIdx++
		}
		args = append(args, param)
	}
	return args, nil
}

// formatTopicValue renders an indexed topic according to the declared type.
// Dynamic indexed types are hashed on chain, so anything non-elementary
// falls back to the raw topic hex.
func formatTopicValue(t abi.Type, topic common.Hash) string {
	switch t.T {
	case abi.AddressTy:
		return strings.ToLower(common.BytesToAddress(topic.Bytes()).Hex())
	case abi.UintTy:
		return new(big.Int).SetBytes(topic.Bytes()).String()
	case abi.IntTy:
		// Signed values are sign-extended to the full 32-byte word on chain.
		return math.S256(new(big.Int).SetBytes(topic.Bytes())).String()
	case abi.BoolTy:
		return strconv.FormatBool(topic[common.HashLength-1] != 0)
	default:
		return topic.Hex()
	}
}

// formatABIValue renders a decoded ABI value as the canonical string used in
// parameter bags: decimal for integers, lowercase 0x hex for addresses and
// byte arrays, bracketed lists for slices.
func formatABIValue(v any) string {
	switch val := v.(type) {
	case *big.Int:
		return val.String()
	case common.Address:
		return strings.ToLower(val.Hex())
	case common.Hash:
		return val.Hex()
	case bool:
		return strconv.FormatBool(val)
	case string:
		return val
	case []byte:
		return "0x" + hex.EncodeToString(val)
	case [32]byte:
		return "0x" + hex.EncodeToString(val[:])
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case []*big.Int:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []common.Address:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = strings.ToLower(e.Hex())
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []string:
		return "[" + strings.Join(val, ",") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func argName(name string, index int) string {
	if name != "" {
		return name
	}
	return "param" + strconv.Itoa(index)
}

// matchSignatureConditions evaluates event conditions against decoded
// occurrences. Returns the conditions that matched at least once and the
// occurrences that satisfied some condition.
func matchSignatureConditions(conds []models.EventCondition, occurrences []models.MatchParamsMap) ([]models.EventCondition, []models.MatchParamsMap) {
	var matched []models.EventCondition
	var matchedArgs []models.MatchParamsMap
	usedOccurrence := make([]bool, len(occurrences))
	for _, cond := range conds {
		hit := false
		for i, occ := range occurrences {
			if !models.SameSignature(cond.Signature, occ.Signature) {
				continue
			}
			if !EvaluateExpression(cond.Expression, occ.Args) {
				continue
			}
			hit = true
			if !usedOccurrence[i] {
				usedOccurrence[i] = true
				matchedArgs = append(matchedArgs, occ)
			}
		}
		if hit {
			matched = append(matched, cond)
		}
	}
	return matched, matchedArgs
}

// matchFunctionConditions mirrors matchSignatureConditions for function
// conditions.
func matchFunctionConditions(conds []models.FunctionCondition, occurrences []models.MatchParamsMap) ([]models.FunctionCondition, []models.MatchParamsMap) {
	var matched []models.FunctionCondition
	var matchedArgs []models.MatchParamsMap
	usedOccurrence := make([]bool, len(occurrences))
	for _, cond := range conds {
		hit := false
		for i, occ := range occurrences {
			if !models.SameSignature(cond.Signature, occ.Signature) {
				continue
			}
			if !EvaluateExpression(cond.Expression, occ.Args) {
				continue
			}
			hit = true
			if !usedOccurrence[i] {
				usedOccurrence[i] = true
				matchedArgs = append(matchedArgs, occ)
			}
		}
		if hit {
			matched = append(matched, cond)
		}
	}
	return matched, matchedArgs
}

// matchTransactionConditions evaluates transaction conditions against the
// transaction parameter bag. An empty condition list yields one synthetic
// StatusAny match, so transaction matching defaults to "every transaction".
func matchTransactionConditions(conds []models.TransactionCondition, tx *models.EVMTransaction, receipt *models.EVMReceipt) []models.TransactionCondition {
	if len(conds) == 0 {
		return []models.TransactionCondition{{Status: models.StatusAny}}
	}
	params := evmTransactionParams(tx, receipt)
	var matched []models.TransactionCondition
	for _, cond := range conds {
		if !statusMatches(cond.Status, receipt.Succeeded()) {
			continue
		}
		if !EvaluateExpression(cond.Expression, params) {
			continue
		}
		matched = append(matched, cond)
	}
	return matched
}

func statusMatches(want models.TransactionStatus, succeeded bool) bool {
	switch want {
	case models.StatusAny:
		return true
	case models.StatusSuccess:
		return succeeded
	case models.StatusFailure:
		return !succeeded
	}
	return false
}

// evmTransactionParams builds the bag transaction expressions evaluate
// against.
func evmTransactionParams(tx *models.EVMTransaction, receipt *models.EVMReceipt) []models.MatchParam {
	to := ""
	if tx.To != nil {
		to = strings.ToLower(tx.To.Hex())
	}
	gasPrice := "0"
	if tx.GasPrice != nil {
		gasPrice = tx.GasPrice.ToInt().String()
	}
	return []models.MatchParam{
		{Name: "value", Value: tx.ValueString(), Kind: "uint256"},
		{Name: "from", Value: strings.ToLower(tx.From.Hex()), Kind: "address"},
		{Name: "to", Value: to, Kind: "address"},
		{Name: "hash", Value: tx.Hash.Hex(), Kind: "string"},
		{Name: "gas_price", Value: gasPrice, Kind: "uint256"},
		{Name: "gas_limit", Value: strconv.FormatUint(uint64(tx.Gas), 10), Kind: "uint64"},
		{Name: "gas_used", Value: strconv.FormatUint(uint64(receipt.GasUsed), 10), Kind: "uint64"},
		{Name: "nonce", Value: strconv.FormatUint(uint64(tx.Nonce), 10), Kind: "uint64"},
	}
}

// combineMatches applies the condition combining policy. With nothing
// specified every transaction matches; with only transaction conditions the
// transaction result decides; with transaction conditions absent any event
// or function hit decides; otherwise an event or function hit must coincide
// with a transaction hit.
func combineMatches(conds *models.MatchConditions, eventHit, functionHit, txHit bool) bool {
	eventsSpecified := len(conds.Events) > 0
	functionsSpecified := len(conds.Functions) > 0
	txSpecified := len(conds.Transactions) > 0

	switch {
	case !eventsSpecified && !functionsSpecified && !txSpecified:
		return true
	case txSpecified && !eventsSpecified && !functionsSpecified:
		return txHit
	case !txSpecified:
		return eventHit || functionHit
	default:
		return (eventHit || functionHit) && txHit
	}
}
