package filters

import "github.com/wudi/pdfannot/ir/raw"

// ExtractFilters reads the Filter and DecodeParms entries of a stream
// dictionary. A single name and a single parameter dictionary are promoted
// to one-element slices; params may be shorter than names.
func ExtractFilters(dict *raw.DictObj) (names []string, params []*raw.DictObj) {
	switch f := valueOrNil(dict, "Filter").(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := raw.AsName(item); ok {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	switch p := valueOrNil(dict, "DecodeParms").(type) {
	case *raw.DictObj:
		params = append(params, p)
	case *raw.ArrayObj:
		for _, item := range p.Items {
			d, _ := item.(*raw.DictObj)
			params = append(params, d)
		}
	}
	return names, params
}

func valueOrNil(dict *raw.DictObj, key string) raw.Object {
	v, _ := dict.Lookup(key)
	return v
}
