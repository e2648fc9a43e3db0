// Package tags implements the codec for the key/value metadata attached to
// ledger transactions.
//
// Tags are the interaction encoding protocol: the engine reads a contract's
// defining transaction through them and writes every interaction through
// them. On the wire both the name and the value are URL-safe base64 without
// padding; this package is the only place that knows about that encoding.
package tags

import (
	"encoding/base64"

	"github.com/loomledger/loom/core/ledger"
	"golang.org/x/xerrors"
)

// Names of the tags the protocol defines.
const (
	TagAppName     = "App-Name"
	TagAppVersion  = "App-Version"
	TagContract    = "Contract"
	TagInput       = "Input"
	TagContractSrc = "Contract-Src"
	TagInitState   = "Init-State"
	TagInitStateTX = "Init-State-TX"
	TagMinFee      = "Min-Fee"
)

// Protocol identification values attached to every interaction.
const (
	AppName    = "SmartWeaveAction"
	AppVersion = "0.3.0"
)

var b64 = base64.RawURLEncoding

// Encode packs a name/value pair into its wire form.
func Encode(name, value string) ledger.Tag {
	return ledger.Tag{
		Name:  b64.EncodeToString([]byte(name)),
		Value: b64.EncodeToString([]byte(value)),
	}
}

// Decode unpacks the wire form of a tag into its name and value.
func Decode(tag ledger.Tag) (name string, value string, err error) {
	rawName, err := b64.DecodeString(tag.Name)
	if err != nil {
		return "", "", xerrors.Errorf("couldn't decode tag name: %v", err)
	}

	rawValue, err := b64.DecodeString(tag.Value)
	if err != nil {
		return "", "", xerrors.Errorf("couldn't decode tag value: %v", err)
	}

	return string(rawName), string(rawValue), nil
}

// Map holds the decoded tags of one transaction. A name that appears several
// times keeps every value in order of appearance.
type Map map[string][]string

// Get returns the first value of the tag, if it is present.
func (m Map) Get(name string) (string, bool) {
	values := m[name]
	if len(values) == 0 {
		return "", false
	}

	return values[0], true
}

// All returns every value recorded for the tag.
func (m Map) All(name string) []string {
	return m[name]
}

// Unpack decodes every tag of the transaction.
func Unpack(tx ledger.Transaction) (Map, error) {
	m := make(Map, len(tx.Tags))

	for i, tag := range tx.Tags {
		name, value, err := Decode(tag)
		if err != nil {
			return nil, xerrors.Errorf("tag at index %d: %v", i, err)
		}

		m[name] = append(m[name], value)
	}

	return m, nil
}

// Find decodes the tags of the transaction and returns the first value of the
// requested tag. It returns false when the tag is missing or undecodable.
func Find(tx ledger.Transaction, name string) (string, bool) {
	m, err := Unpack(tx)
	if err != nil {
		return "", false
	}

	return m.Get(name)
}
