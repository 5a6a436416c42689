package market

import "strings"

// Column naming contract of the wide table.
const (
	TimestampColumn = "timestamp"

	valueSuffix     = "_value"
	featureInfix    = "_feature_"
	sentimentSuffix = "_sentiment"
	volumeSuffix    = "_volume"
	movingAvgSuffix = "_feature_ma_10"
)

var macroPrefixes = []string{"usa_", "euro_"}

func ValueColumn(asset string) string { return asset + valueSuffix }

// MovingAverageColumn is the smoothed series the univariate models forecast.
func MovingAverageColumn(asset string) string { return asset + movingAvgSuffix }

func AssetFromValueColumn(col string) (string, bool) {
	if !strings.HasSuffix(col, valueSuffix) || len(col) == len(valueSuffix) {
		return "", false
	}
	return strings.TrimSuffix(col, valueSuffix), true
}

// IsAssetFeature reports whether col is one of the asset's own feature,
// sentiment or volume columns.
func IsAssetFeature(asset, col string) bool {
	return strings.HasPrefix(col, asset+featureInfix) ||
		col == asset+sentimentSuffix ||
		col == asset+volumeSuffix
}

func IsMacro(col string) bool {
	for _, p := range macroPrefixes {
		if strings.HasPrefix(col, p) {
			return true
		}
	}
	return false
}

// FeatureColumns returns the asset's feature columns in frame order.
func (f *Frame) FeatureColumns(asset string) []string {
	var out []string
	for _, c := range f.columns {
		if IsAssetFeature(asset, c) {
			out = append(out, c)
		}
	}
	return out
}

// MacroColumns returns the shared macroeconomic columns in frame order.
func (f *Frame) MacroColumns() []string {
	var out []string
	for _, c := range f.columns {
		if IsMacro(c) {
			out = append(out, c)
		}
	}
	return out
}
