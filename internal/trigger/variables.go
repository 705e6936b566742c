// Package trigger turns monitor matches into notifications: it builds the
// template variable bag from a match, resolves the monitor's trigger names,
// and dispatches to each sink.
package trigger

import (
	"strconv"
	"strings"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// Variables flattens a match into the interpolation bag. Two key styles are
// exposed for every value: legacy flat keys (event_0_from) and dotted
// namespaces (events.0.from), so older trigger templates keep working.
func Variables(match models.MonitorMatch) map[string]string {
	vars := make(map[string]string)
	vars["monitor_name"] = match.MonitorName()

	switch {
	case match.EVM != nil:
		m := match.EVM
		vars["network_slug"] = m.NetworkSlug
		vars["transaction_hash"] = m.Transaction.Hash.Hex()
		vars["transaction_from"] = strings.ToLower(m.Transaction.From.Hex())
		if m.Transaction.To != nil {
			vars["transaction_to"] = strings.ToLower(m.Transaction.To.Hex())
		}
		vars["transaction_value"] = m.Transaction.ValueString()
		addArguments(vars, m.MatchedOnArgs)
	case match.Stellar != nil:
		m := match.Stellar
		vars["network_slug"] = m.NetworkSlug
		vars["transaction_hash"] = m.Transaction.Hash
		vars["ledger_sequence"] = strconv.FormatUint(uint64(m.Ledger.Sequence), 10)
		addArguments(vars, m.MatchedOnArgs)
	}
	return vars
}

func addArguments(vars map[string]string, args *models.MatchArguments) {
	if args == nil {
		return
	}
	addOccurrences(vars, "event", "events", args.Events)
	addOccurrences(vars, "function", "functions", args.Functions)
}

func addOccurrences(vars map[string]string, flatPrefix, dottedPrefix string, occurrences []models.MatchParamsMap) {
	for i, occ := range occurrences {
		idx := strconv.Itoa(i)
		vars[flatPrefix+"_"+idx+"_signature"] = occ.Signature
		vars[dottedPrefix+"."+idx+".signature"] = occ.Signature
		for _, arg := range occ.Args {
			if arg.Name == "" {
				continue
			}
			vars[flatPrefix+"_"+idx+"_"+arg.Name] = arg.Value
			vars[dottedPrefix+"."+idx+"."+arg.Name] = arg.Value
		}
	}
}
