package memory

import (
	"time"

	"booking-service/internal/models"
)

// SeedDemo fills s with one room of 5x8 seats, three showtimes on day, two
// combos and a promotion running for the month of day.
func SeedDemo(s *Store, day time.Time) {
	y, m, d := day.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var id int64
	for r, row := range []string{"A", "B", "C", "D", "E"} {
		for col := 1; col <= 8; col++ {
			id++
			seatType := models.SeatTypeStandard
			switch {
			case r == 4:
				seatType = models.SeatTypeCouple
			case r == 3:
				seatType = models.SeatTypeVIP
			case r == 2 && col >= 3 && col <= 6:
				seatType = models.SeatTypePremium
			}
			s.AddSeat(models.Seat{ID: id, RoomID: 1, RowLabel: row, ColumnNumber: col, SeatType: seatType})
		}
	}

	s.AddShowtime(models.Showtime{ID: 1, MovieID: 1, RoomID: 1, Date: date, StartTime: "10:00:00", EndTime: "12:00:00", BasePrice: 75000})
	s.AddShowtime(models.Showtime{ID: 2, MovieID: 1, RoomID: 1, Date: date, StartTime: "14:00:00", EndTime: "16:00:00", BasePrice: 90000})
	s.AddShowtime(models.Showtime{ID: 3, MovieID: 2, RoomID: 1, Date: date, StartTime: "20:00:00", EndTime: "22:15:00", BasePrice: 110000})

	s.AddCombo(models.Combo{ID: 1, Name: "Popcorn + Coke", Price: 65000})
	s.AddCombo(models.Combo{ID: 2, Name: "Couple combo", Price: 109000})

	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	s.AddPromotion(models.Promotion{
		ID:              1,
		Code:            "WELCOME10",
		Name:            "Welcome discount",
		DiscountPercent: 10,
		StartDate:       first,
		EndDate:         first.AddDate(0, 1, -1),
	})
}
