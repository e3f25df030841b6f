package review

import "parcelmarket/internal/domain"

type CreateReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

type RespondRequest struct {
	Response string `json:"response" binding:"required,max=2000"`
}

type ListQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// TravelerReviews is a traveler's public reputation.
type TravelerReviews struct {
	TravelerID    int64           `json:"traveler_id"`
	AverageRating float64         `json:"average_rating"`
	RatingCount   int64           `json:"rating_count"`
	Reviews       []domain.Review `json:"reviews"`
}
