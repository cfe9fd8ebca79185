package msg

import (
	"github.com/tobi-tobsen/netmq/json"
)

// ToJSON appends a JSON representation of the frame to dst, for debug and
// trace output: {"flags":N,"delimiter":B,"data":"0x.."}.
func (m *Msg) ToJSON(dst []byte) []byte {
	dst = append(dst, `{"flags":`...)
	dst = json.Byte(dst, byte(m.flags))
	dst = append(dst, `,"delimiter":`...)
	dst = json.Bool(dst, m.delimiter)
	dst = append(dst, `,"data":`...)
	dst = json.Hex(dst, m.Data())
	return append(dst, '}')
}

// FromJSON re-initializes the frame from the representation written by
// ToJSON, overwriting any previous contents.
func (m *Msg) FromJSON(src []byte) error {
	var (
		flags Flag
		delim bool
		data  []byte
	)
	err := json.ObjectEach(src, func(key, val []byte) error {
		switch json.S(key) {
		case "flags":
			f, err := json.UnByte(val)
			if err != nil {
				return err
			}
			flags = Flag(f)
		case "delimiter":
			d, err := json.UnBool(val)
			if err != nil {
				return err
			}
			delim = d
		case "data":
			b, err := json.UnHex(nil, val)
			if err != nil {
				return err
			}
			data = b
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.initBuffer(data, true)
	m.flags = flags
	m.delimiter = delim
	return nil
}
