package ranking

import "testing"

func TestClamp(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}

	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRound4(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.12344, 0.1234},
		{0.12345, 0.1235},
		{0.99999, 1.0},
		{0.5, 0.5},
		{0, 0},
	}

	for _, tt := range tests {
		if got := Round4(tt.in); got != tt.want {
			t.Errorf("Round4(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNeutralScore(t *testing.T) {
	s := NeutralScore("post-9")
	if s.PostID != "post-9" {
		t.Errorf("PostID = %q, want post-9", s.PostID)
	}
	for name, v := range map[string]float64{
		"FinalScore":      s.FinalScore,
		"ContentAffinity": s.ContentAffinity,
		"SocialAffinity":  s.SocialAffinity,
		"PastEngagement":  s.PastEngagement,
		"Timing":          s.Timing,
		"Popularity":      s.Popularity,
	} {
		if v != 0.5 {
			t.Errorf("%s = %v, want 0.5", name, v)
		}
	}
}

func TestCombine(t *testing.T) {
	w := DefaultWeights()

	t.Run("weighted sum of rounded components", func(t *testing.T) {
		s := Combine("p", 1.0, 0.8, 0.5, 0.85, 0.25, w)
		want := Round4(1.0*0.25 + 0.8*0.25 + 0.5*0.15 + 0.85*0.15 + 0.25*0.20)
		if s.FinalScore != want {
			t.Errorf("FinalScore = %v, want %v", s.FinalScore, want)
		}
	})

	t.Run("out of range inputs clamp", func(t *testing.T) {
		s := Combine("p", 1.4, -0.3, 0.5, 0.5, 0.5, w)
		if s.ContentAffinity != 1.0 {
			t.Errorf("ContentAffinity = %v, want clamped 1.0", s.ContentAffinity)
		}
		if s.SocialAffinity != 0.0 {
			t.Errorf("SocialAffinity = %v, want clamped 0.0", s.SocialAffinity)
		}
	})

	t.Run("all ones yields one", func(t *testing.T) {
		s := Combine("p", 1, 1, 1, 1, 1, w)
		if s.FinalScore != 1.0 {
			t.Errorf("FinalScore = %v, want 1.0", s.FinalScore)
		}
	})

	t.Run("components rounded to four places", func(t *testing.T) {
		s := Combine("p", 0.70710678, 0.1, 0.5, 0.5, 0.5, w)
		if s.ContentAffinity != 0.7071 {
			t.Errorf("ContentAffinity = %v, want 0.7071", s.ContentAffinity)
		}
	})
}
