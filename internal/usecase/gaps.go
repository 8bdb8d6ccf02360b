package usecase

import "CandleSync/internal/domain/models"

// DetectGaps reports which sides of req fall outside the known data range.
// Without a known range the whole request is missing.
func DetectGaps(known *models.DataRange, req models.VisibleRange) models.Gaps {
	if known == nil {
		from, to := req.From, req.To
		return models.Gaps{MissingStart: &from, MissingEnd: &to}
	}

	var gaps models.Gaps
	if req.From < known.Min {
		from := req.From
		gaps.MissingStart = &from
	}
	if req.To > known.Max {
		to := req.To
		gaps.MissingEnd = &to
	}
	return gaps
}

// UnionRange widens the known range to cover req. It never shrinks.
func UnionRange(known *models.DataRange, req models.VisibleRange) models.VisibleRange {
	if known == nil {
		return req
	}
	out := models.VisibleRange{From: known.Min, To: known.Max}
	if req.From < out.From {
		out.From = req.From
	}
	if req.To > out.To {
		out.To = req.To
	}
	return out
}
