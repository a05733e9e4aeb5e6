package twin

// Biological age adjustment from lab biomarkers. Each present biomarker
// contributes a fixed signed delta in years from the threshold table below;
// values between thresholds contribute nothing. The resulting delta is the
// arithmetic mean of the contributions.
//
// Thresholds from established biomarker ranges:
//
//	CRP (inflammation)   < 1.0 mg/L  -> -1.0   > 3.0 mg/L -> +2.0
//	HbA1c (metabolic)    < 5.4 %     -> -0.5   > 5.7 %    -> +1.5
//	Vitamin D (immune)   > 40 ng/ml  -> -0.3   < 20 ng/ml -> +1.0
func biologicalAgeDelta(biomarkers map[string]any) (float64, bool) {
	var factors []float64

	if crp, ok := biomarkerValue(biomarkers, "crp", "c-reactive protein"); ok {
		switch {
		case crp < 1.0:
			factors = append(factors, -1.0)
		case crp > 3.0:
			factors = append(factors, 2.0)
		}
	}

	if hba1c, ok := biomarkerValue(biomarkers, "hba1c", "a1c"); ok {
		switch {
		case hba1c < 5.4:
			factors = append(factors, -0.5)
		case hba1c > 5.7:
			factors = append(factors, 1.5)
		}
	}

	if vitD, ok := biomarkerValue(biomarkers, "vitamin d", "25-hydroxyvitamin d"); ok {
		switch {
		case vitD > 40:
			factors = append(factors, -0.3)
		case vitD < 20:
			factors = append(factors, 1.0)
		}
	}

	if len(factors) == 0 {
		return 0, false
	}
	var sum float64
	for _, f := range factors {
		sum += f
	}
	return sum / float64(len(factors)), true
}

// biomarkerValue reads the first present alias as a number. JSON decoding
// yields float64 for all numbers; other types are ignored.
func biomarkerValue(biomarkers map[string]any, aliases ...string) (float64, bool) {
	for _, alias := range aliases {
		if v, ok := biomarkers[alias]; ok {
			if f, ok := asFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
