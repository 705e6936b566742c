package filter

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

// decodeScValBase64 decodes a base64 XDR ScVal into its kind tag and string
// rendering.
func decodeScValBase64(b64 string) (kind, value string, err error) {
	var v xdr.ScVal
	if err := xdr.SafeUnmarshalBase64(b64, &v); err != nil {
		return "", "", err
	}
	k, val := renderScVal(v)
	return k, val, nil
}

// renderScVal maps an ScVal to (kind, value). Kinds are the tags expression
// comparison keys on: Bool, U32, I32, U64, I64, U128, I128, Bytes, String,
// Symbol, Vec, Map, Address.
func renderScVal(v xdr.ScVal) (string, string) {
	switch v.Type {
	case xdr.ScValTypeScvBool:
		if v.B != nil {
			return "Bool", strconv.FormatBool(bool(*v.B))
		}
	case xdr.ScValTypeScvU32:
		if v.U32 != nil {
			return "U32", strconv.FormatUint(uint64(*v.U32), 10)
		}
	case xdr.ScValTypeScvI32:
		if v.I32 != nil {
			return "I32", strconv.FormatInt(int64(*v.I32), 10)
		}
	case xdr.ScValTypeScvU64:
		if v.U64 != nil {
			return "U64", strconv.FormatUint(uint64(*v.U64), 10)
		}
	case xdr.ScValTypeScvI64:
		if v.I64 != nil {
			return "I64", strconv.FormatInt(int64(*v.I64), 10)
		}
	case xdr.ScValTypeScvTimepoint:
		if v.Timepoint != nil {
			return "Timepoint", strconv.FormatUint(uint64(*v.Timepoint), 10)
		}
	case xdr.ScValTypeScvDuration:
		if v.Duration != nil {
			return "Duration", strconv.FormatUint(uint64(*v.Duration), 10)
		}
	case xdr.ScValTypeScvU128:
		if v.U128 != nil {
			return "U128", uint128String(v.U128.Hi, v.U128.Lo)
		}
	case xdr.ScValTypeScvI128:
		if v.I128 != nil {
			return "I128", int128String(v.I128.Hi, v.I128.Lo)
		}
	case xdr.ScValTypeScvBytes:
		if v.Bytes != nil {
			return "Bytes", "0x" + hex.EncodeToString(*v.Bytes)
		}
	case xdr.ScValTypeScvString:
		if v.Str != nil {
			return "String", string(*v.Str)
		}
	case xdr.ScValTypeScvSymbol:
		if v.Sym != nil {
			return "Symbol", string(*v.Sym)
		}
	case xdr.ScValTypeScvAddress:
		if v.Address != nil {
			return "Address", scAddressString(*v.Address)
		}
	case xdr.ScValTypeScvVec:
		if v.Vec != nil && *v.Vec != nil {
			return "Vec", renderScVec(**v.Vec)
		}
	case xdr.ScValTypeScvMap:
		if v.Map != nil && *v.Map != nil {
			return "Map", renderScMap(**v.Map)
		}
	case xdr.ScValTypeScvVoid:
		return "Void", ""
	}
	return "String", ""
}

// renderScVec renders a vector as a JSON array of string renderings, so the
// expression "contains" operator can split it back apart.
func renderScVec(vec xdr.ScVec) string {
	elems := make([]string, 0, len(vec))
	for _, e := range vec {
		_, val := renderScVal(e)
		elems = append(elems, val)
	}
	encoded, err := json.Marshal(elems)
	if err != nil {
		return "[" + strings.Join(elems, ",") + "]"
	}
	return string(encoded)
}

// renderScMap renders a map as a JSON object keyed by the rendered keys, so
// dotted expression paths can descend into it.
func renderScMap(m xdr.ScMap) string {
	obj := make(map[string]string, len(m))
	for _, entry := range m {
		_, key := renderScVal(entry.Key)
		_, val := renderScVal(entry.Val)
		obj[key] = val
	}
	encoded, err := json.Marshal(obj)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// scAddressString renders contract addresses as C... and accounts as G...
// strkeys.
func scAddressString(addr xdr.ScAddress) string {
	switch addr.Type {
	case xdr.ScAddressTypeScAddressTypeContract:
		if addr.ContractId != nil {
			s, err := strkey.Encode(strkey.VersionByteContract, (*addr.ContractId)[:])
			if err == nil {
				return s
			}
		}
	case xdr.ScAddressTypeScAddressTypeAccount:
		if addr.AccountId != nil {
			return addr.AccountId.Address()
		}
	}
	return ""
}

func uint128String(hi, lo xdr.Uint64) string {
	n := new(big.Int).SetUint64(uint64(hi))
	n.Lsh(n, 64)
	return n.Add(n, new(big.Int).SetUint64(uint64(lo))).String()
}

func int128String(hi xdr.Int64, lo xdr.Uint64) string {
	n := big.NewInt(int64(hi))
	n.Lsh(n, 64)
	return n.Add(n, new(big.Int).SetUint64(uint64(lo))).String()
}
