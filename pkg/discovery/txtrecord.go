package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXTRecordMap is a key/value view of mDNS TXT records.
type TXTRecordMap map[string]string

// EncodeGatewayTXT builds the TXT records for a gateway advertisement.
func EncodeGatewayTXT(svc *GatewayService) TXTRecordMap {
	txt := TXTRecordMap{}
	if svc.Path != "" {
		txt[TXTKeyPath] = svc.Path
	}
	if svc.Name != "" {
		txt[TXTKeyName] = svc.Name
	}
	if svc.MinProtocol > 0 {
		txt[TXTKeyMinProtocol] = strconv.Itoa(svc.MinProtocol)
	}
	if svc.MaxProtocol > 0 {
		txt[TXTKeyMaxProtocol] = strconv.Itoa(svc.MaxProtocol)
	}
	if svc.TLS {
		txt[TXTKeyTLS] = "1"
	}
	return txt
}

// DecodeGatewayTXT parses gateway TXT records. Unknown keys are ignored;
// malformed protocol versions are an error.
func DecodeGatewayTXT(txt TXTRecordMap) (path, name string, minProto, maxProto int, tls bool, err error) {
	path = txt[TXTKeyPath]
	name = txt[TXTKeyName]
	tls = txt[TXTKeyTLS] == "1"

	if v, ok := txt[TXTKeyMinProtocol]; ok {
		minProto, err = strconv.Atoi(v)
		if err != nil || minProto < 0 {
			return "", "", 0, 0, false, fmt.Errorf("%w: bad %s value %q", ErrInvalidTXTRecord, TXTKeyMinProtocol, v)
		}
	}
	if v, ok := txt[TXTKeyMaxProtocol]; ok {
		maxProto, err = strconv.Atoi(v)
		if err != nil || maxProto < 0 {
			return "", "", 0, 0, false, fmt.Errorf("%w: bad %s value %q", ErrInvalidTXTRecord, TXTKeyMaxProtocol, v)
		}
	}
	return path, name, minProto, maxProto, tls, nil
}

// TXTRecordsToStrings converts a TXT map to "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	strs := make([]string, 0, len(txt))
	for k, v := range txt {
		strs = append(strs, k+"="+v)
	}
	return strs
}

// StringsToTXTRecords parses "key=value" strings into a TXT map.
// Entries without '=' are treated as boolean flags with empty values.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(strs))
	for _, s := range strs {
		key, value, found := strings.Cut(s, "=")
		if !found {
			txt[s] = ""
			continue
		}
		txt[key] = value
	}
	return txt
}
