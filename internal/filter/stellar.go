package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stellar/go/xdr"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// StellarFilter matches monitors against Stellar ledgers. Contract
// invocations come from decoding transaction envelope XDR; contract events
// come pre-fetched on the ledger data, attached to transactions by hash.
type StellarFilter struct {
	logger *zap.Logger
}

// NewStellarFilter creates a Stellar filter.
func NewStellarFilter(logger *zap.Logger) *StellarFilter {
	return &StellarFilter{logger: logger.Named("stellar_filter")}
}

// stellarInvocation is one decoded InvokeContract host function call.
type stellarInvocation struct {
	contractAddress string
	occurrence      models.MatchParamsMap
}

// stellarEventOccurrence is one decoded contract event with its emitter.
type stellarEventOccurrence struct {
	contractID string
	occurrence models.MatchParamsMap
}

// FilterBlock evaluates every monitor against every transaction of the
// ledger and returns the matches.
func (f *StellarFilter) FilterBlock(network *models.Network, data *models.StellarLedgerData, monitors []models.Monitor) ([]models.MonitorMatch, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: nil Stellar ledger for network %q", ErrBlockTypeMismatch, network.Slug)
	}
	if len(monitors) == 0 || len(data.Transactions) == 0 {
		return nil, nil
	}

	eventsByTx := make(map[string][]models.StellarEvent)
	for _, ev := range data.Events {
		eventsByTx[ev.TransactionHash] = append(eventsByTx[ev.TransactionHash], ev)
	}

	var matches []models.MonitorMatch
	for i := range data.Transactions {
		tx := &data.Transactions[i]
		invocations := f.decodeInvocations(tx)
		events := f.decodeEvents(eventsByTx[tx.Hash])
		for mi := range monitors {
			monitor := &monitors[mi]
			if match := f.matchTransaction(monitor, network, &data.Ledger, tx, invocations, events); match != nil {
				matches = append(matches, models.MonitorMatch{Stellar: match})
			}
		}
	}
	return matches, nil
}

// decodeInvocations extracts InvokeContract host function calls from the
// transaction envelope XDR. Undecodable envelopes are logged and skipped.
func (f *StellarFilter) decodeInvocations(tx *models.StellarTransaction) []stellarInvocation {
	if tx.EnvelopeXDR == "" {
		return nil
	}
	var envelope xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(tx.EnvelopeXDR, &envelope); err != nil {
		f.logger.Debug("undecodable transaction envelope",
			zap.String("tx_hash", tx.Hash),
			zap.Error(err))
		return nil
	}

	var out []stellarInvocation
	for _, op := range envelope.Operations() {
		if op.Body.Type != xdr.OperationTypeInvokeHostFunction {
			continue
		}
		hostFn := op.Body.MustInvokeHostFunctionOp().HostFunction
		if hostFn.Type != xdr.HostFunctionTypeHostFunctionTypeInvokeContract {
			continue
		}
		invoke := hostFn.MustInvokeContract()

		kinds := make([]string, 0, len(invoke.Args))
		args := make([]models.MatchParam, 0, len(invoke.Args))
		for i, arg := range invoke.Args {
			kind, value := renderScVal(arg)
			kinds = append(kinds, kind)
			args = append(args, models.MatchParam{
				Name:  strconv.Itoa(i),
				Value: value,
				Kind:  kind,
			})
		}
		out = append(out, stellarInvocation{
			contractAddress: scAddressString(invoke.ContractAddress),
			occurrence: models.MatchParamsMap{
				Signature: fmt.Sprintf("%s(%s)", string(invoke.FunctionName), strings.Join(kinds, ",")),
				Args:      args,
			},
		})
	}
	return out
}

// decodeEvents decodes contract events into signature/argument occurrences.
// The first topic names the event; remaining topics are indexed arguments
// and the value payload is the trailing argument.
func (f *StellarFilter) decodeEvents(events []models.StellarEvent) []stellarEventOccurrence {
	var out []stellarEventOccurrence
	for _, ev := range events {
		if len(ev.Topic) == 0 {
			continue
		}
		nameKind, name, err := decodeScValBase64(ev.Topic[0])
		if err != nil || nameKind != "Symbol" || name == "" {
			f.logger.Debug("skipping event without symbol topic",
				zap.String("contract", ev.ContractID),
				zap.String("tx_hash", ev.TransactionHash))
			continue
		}

		var kinds []string
		var args []models.MatchParam
		position := 0
		for _, topic := range ev.Topic[1:] {
			kind, value, err := decodeScValBase64(topic)
			if err != nil {
				continue
			}
			kinds = append(kinds, kind)
			args = append(args, models.MatchParam{
				Name:    strconv.Itoa(position),
				Value:   value,
				Kind:    kind,
				Indexed: true,
			})
			position++
		}
		if ev.Value != "" {
			kind, value, err := decodeScValBase64(ev.Value)
			if err == nil && kind != "Void" {
				kinds = append(kinds, kind)
				args = append(args, models.MatchParam{
					Name:  strconv.Itoa(position),
					Value: value,
					Kind:  kind,
				})
			}
		}

		out = append(out, stellarEventOccurrence{
			contractID: ev.ContractID,
			occurrence: models.MatchParamsMap{
				Signature: fmt.Sprintf("%s(%s)", name, strings.Join(kinds, ",")),
				Args:      args,
			},
		})
	}
	return out
}

// matchTransaction applies one monitor to one transaction with its decoded
// invocations and events.
func (f *StellarFilter) matchTransaction(monitor *models.Monitor, network *models.Network, ledger *models.StellarLedger, tx *models.StellarTransaction, invocations []stellarInvocation, events []stellarEventOccurrence) *models.StellarMonitorMatch {
	scopedInvocations := scopeInvocations(monitor, invocations)
	scopedEvents := scopeEvents(monitor, events)
	if len(monitor.Addresses) > 0 && len(scopedInvocations) == 0 && len(scopedEvents) == 0 {
		return nil
	}

	functions := make([]models.MatchParamsMap, 0, len(scopedInvocations))
	for _, inv := range scopedInvocations {
		functions = append(functions, inv.occurrence)
	}

	eventOccurrences := make([]models.MatchParamsMap, 0, len(scopedEvents))
	for _, ev := range scopedEvents {
		eventOccurrences = append(eventOccurrences, ev.occurrence)
	}

	conds := &monitor.MatchConditions
	matchedEvents, eventArgs := matchSignatureConditions(conds.Events, eventOccurrences)
	matchedFunctions, functionArgs := matchFunctionConditions(conds.Functions, functions)
	matchedTxs := matchStellarTransactionConditions(conds.Transactions, tx)

	if !combineMatches(conds, len(matchedEvents) > 0, len(matchedFunctions) > 0, len(matchedTxs) > 0) {
		return nil
	}

	match := &models.StellarMonitorMatch{
		Monitor:     monitor.StripSpecs(),
		Transaction: *tx,
		Ledger:      *ledger,
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

// scopeInvocations keeps invocations targeting a monitored contract. A
// monitor without addresses keeps everything.
func scopeInvocations(monitor *models.Monitor, invocations []stellarInvocation) []stellarInvocation {
	if len(monitor.Addresses) == 0 {
		return invocations
	}
	var out []stellarInvocation
	for _, inv := range invocations {
		for _, a := range monitor.Addresses {
			if models.SameAddress(a.Address, inv.contractAddress) {
				out = append(out, inv)
				break
			}
		}
	}
	return out
}

// scopeEvents keeps events emitted by a monitored contract. A monitor
// without addresses keeps everything.
func scopeEvents(monitor *models.Monitor, events []stellarEventOccurrence) []stellarEventOccurrence {
	if len(monitor.Addresses) == 0 {
		return events
	}
	var out []stellarEventOccurrence
	for _, ev := range events {
		for _, a := range monitor.Addresses {
			if models.SameAddress(a.Address, ev.contractID) {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// matchStellarTransactionConditions mirrors the EVM transaction matching
// with the Stellar parameter bag.
func matchStellarTransactionConditions(conds []models.TransactionCondition, tx *models.StellarTransaction) []models.TransactionCondition {
	if len(conds) == 0 {
		return []models.TransactionCondition{{Status: models.StatusAny}}
	}
	params := []models.MatchParam{
		{Name: "hash", Value: tx.Hash, Kind: "String"},
		{Name: "ledger", Value: strconv.FormatUint(uint64(tx.Ledger), 10), Kind: "U64"},
	}
	var matched []models.TransactionCondition
	for _, cond := range conds {
		if !statusMatches(cond.Status, tx.Succeeded()) {
			continue
		}
		if !EvaluateExpression(cond.Expression, params) {
			continue
		}
		matched = append(matched, cond)
	}
	return matched
}
