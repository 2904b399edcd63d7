package model

// AppendProperties writes the value under key into props. Nil writes
// nothing. Lists are flattened with numbered keys (key, key2, key3, ...)
// taken from the item's position in the source list; nil items write
// nothing but still occupy their position.
func AppendProperties(values any, key string, props map[string]any) {
	for n, value := range asList(values) {
		if value == nil {
			continue
		}
		props[numberedKey(key, n)] = value
	}
}

// AppendPeriod flattens a Period datatype into key_start / key_end.
func AppendPeriod(period any, key string, props map[string]any) {
	p := asMap(period)
	if p == nil {
		return
	}
	AppendProperties(p["start"], key+"_start", props)
	AppendProperties(p["end"], key+"_end", props)
}

// AppendQuantities flattens Quantity datatype(s): the value keeps the bare
// key, comparator/unit/system/code get suffixed keys.
func AppendQuantities(quantities any, key string, props map[string]any) {
	for n, item := range asList(quantities) {
		q := asMap(item)
		if q == nil {
			continue
		}
		keyName := numberedKey(key, n)
		AppendProperties(q["value"], keyName, props)
		AppendProperties(q["comparator"], keyName+"_comparator", props)
		AppendProperties(q["unit"], keyName+"_unit", props)
		AppendProperties(q["system"], keyName+"_system", props)
		AppendProperties(q["code"], keyName+"_code", props)
	}
}

// AppendRange flattens a Range datatype into its low and high quantities.
func AppendRange(rng any, key string, props map[string]any) {
	r := asMap(rng)
	if r == nil {
		return
	}
	AppendQuantities(r["low"], key+"_low", props)
	AppendQuantities(r["high"], key+"_high", props)
}

// AppendRatio flattens a Ratio datatype into its numerator and denominator
// quantities.
func AppendRatio(ratio any, key string, props map[string]any) {
	r := asMap(ratio)
	if r == nil {
		return
	}
	AppendQuantities(r["numerator"], key+"_numerator", props)
	AppendQuantities(r["denominator"], key+"_denominator", props)
}

// AppendSampledData flattens a SampledData datatype.
func AppendSampledData(sd any, key string, props map[string]any) {
	s := asMap(sd)
	if s == nil {
		return
	}
	AppendQuantities(s["origin"], key+"_origin", props)
	AppendProperties(s["period"], key+"_period", props)
	AppendProperties(s["factor"], key+"_factor", props)
	AppendProperties(s["lowerLimit"], key+"_lower_limit", props)
	AppendProperties(s["upperLimit"], key+"_upper_limit", props)
	AppendProperties(s["dimensions"], key+"_dimensions", props)
	AppendProperties(s["data"], key+"_data", props)
}

// AppendHumanNames flattens HumanName datatype(s): the text keeps the bare
// key, the name parts get suffixed keys.
func AppendHumanNames(names any, key string, props map[string]any) {
	for n, item := range asList(names) {
		name := asMap(item)
		if name == nil {
			continue
		}
		keyName := numberedKey(key, n)
		AppendProperties(name["use"], keyName+"_use", props)
		AppendProperties(name["text"], keyName, props)
		AppendProperties(name["family"], keyName+"_family", props)
		AppendProperties(name["given"], keyName+"_given", props)
		AppendProperties(name["prefix"], keyName+"_prefix", props)
		AppendProperties(name["suffix"], keyName+"_suffix", props)
		AppendPeriod(name["period"], keyName+"_period", props)
	}
}

// AppendAddresses flattens Address datatype(s): the text keeps the bare key,
// the address parts get suffixed keys.
func AppendAddresses(addresses any, key string, props map[string]any) {
	for n, item := range asList(addresses) {
		address := asMap(item)
		if address == nil {
			continue
		}
		keyName := numberedKey(key, n)
		AppendProperties(address["use"], keyName+"_use", props)
		AppendProperties(address["type"], keyName+"_type", props)
		AppendProperties(address["text"], keyName, props)
		AppendProperties(address["line"], keyName+"_line", props)
		AppendProperties(address["city"], keyName+"_city", props)
		AppendProperties(address["district"], keyName+"_district", props)
		AppendProperties(address["state"], keyName+"_state", props)
		AppendProperties(address["postalCode"], keyName+"_postalcode", props)
		AppendProperties(address["country"], keyName+"_country", props)
		AppendPeriod(address["period"], keyName+"_period", props)
	}
}

// AppendContactPoints flattens ContactPoint datatype(s): the value keeps the
// bare key, system/use/rank get suffixed keys.
func AppendContactPoints(cps any, key string, props map[string]any) {
	for n, item := range asList(cps) {
		cp := asMap(item)
		if cp == nil {
			continue
		}
		keyName := numberedKey(key, n)
		AppendProperties(cp["system"], keyName+"_system", props)
		AppendProperties(cp["value"], keyName, props)
		AppendProperties(cp["use"], keyName+"_use", props)
		AppendProperties(cp["rank"], keyName+"_rank", props)
		AppendPeriod(cp["period"], keyName+"_period", props)
	}
}
