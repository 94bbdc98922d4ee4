// Package seed holds the fixed KMPDU election data set used when the remote
// backend is unreachable and restored by a full election reset.
package seed

import (
	"time"

	"github.com/kmpdu/evote/internal/models"
)

// DefaultElectionID is sent to the vote sink for positions that carry no election id
const DefaultElectionID = "el_default"

var eat = time.FixedZone("EAT", 3*60*60)

var (
	pollsOpen  = time.Date(2024, time.December, 1, 8, 0, 0, 0, eat)
	pollsClose = time.Date(2024, time.December, 5, 18, 0, 0, 0, eat)
)

// Positions returns a fresh copy of the seed positions
func Positions() []models.Position {
	return []models.Position{
		{
			ID:    "pos_001",
			Title: "Secretary General",
			Type:  models.PositionNational,
			Candidates: []models.Candidate{
				{ID: "cand_001", Name: "Dr. Davji Atellah", Bio: "Experienced union leader with 15 years of advocacy", VoteCount: 4250},
				{ID: "cand_002", Name: "Dr. Ouma Oluga", Bio: "Former branch secretary, champion of doctor welfare", VoteCount: 3180},
				{ID: "cand_003", Name: "Dr. Mercy Korir", Bio: "Public health specialist and policy advocate", VoteCount: 1970},
			},
			TotalVotes:     9400,
			EligibleVoters: 12000,
			Status:         models.StatusActive,
			StartTime:      pollsOpen,
			EndTime:        pollsClose,
		},
		{
			ID:    "pos_002",
			Title: "National Chairman",
			Type:  models.PositionNational,
			Candidates: []models.Candidate{
				{ID: "cand_004", Name: "Dr. Simon Kigondu", Bio: "Senior consultant with leadership experience", VoteCount: 5120},
				{ID: "cand_005", Name: "Dr. Agnes Muthoni", Bio: "Pediatric specialist and hospital administrator", VoteCount: 4280},
			},
			TotalVotes:     9400,
			EligibleVoters: 12000,
			Status:         models.StatusActive,
			StartTime:      pollsOpen,
			EndTime:        pollsClose,
		},
		{
			ID:    "pos_003",
			Title: "National Treasurer",
			Type:  models.PositionNational,
			Candidates: []models.Candidate{
				{ID: "cand_006", Name: "Dr. Peter Magana", Bio: "Financial management expert in healthcare", VoteCount: 3890},
				{ID: "cand_007", Name: "Dr. Faith Mueni", Bio: "Healthcare economist and budget specialist", VoteCount: 2950},
				{ID: "cand_008", Name: "Dr. John Kamau", Bio: "Former hospital CFO with audit experience", VoteCount: 2560},
			},
			TotalVotes:     9400,
			EligibleVoters: 12000,
			Status:         models.StatusActive,
			StartTime:      pollsOpen,
			EndTime:        pollsClose,
		},
		{
			ID:     "pos_004",
			Title:  "Nairobi Branch Chairman",
			Type:   models.PositionBranch,
			Branch: "Nairobi Branch",
			Candidates: []models.Candidate{
				{ID: "cand_009", Name: "Dr. Lucy Mwangi", Bio: "KNH consultant and branch activist", VoteCount: 1820},
				{ID: "cand_010", Name: "Dr. Michael Otieno", Bio: "Private practice owner and union organizer", VoteCount: 1796},
			},
			TotalVotes:     3616,
			EligibleVoters: 4520,
			Status:         models.StatusActive,
			StartTime:      pollsOpen,
			EndTime:        pollsClose,
		},
	}
}

// Branches lists the union branches known to the portal
func Branches() []string {
	return []string{
		"Nairobi Branch", "Mombasa Branch", "Kisumu Branch", "Nakuru Branch",
		"Eldoret Branch", "Nyeri Branch", "Machakos Branch", "Kisii Branch",
	}
}

// Members returns the demo member directory
func Members() []models.User {
	return []models.User{
		{ID: "usr_001", MemberID: "KMPDU-2024-00456", Name: "Dr. Sarah Wanjiku", Email: "sarah.wanjiku@kmpdu.org", Phone: "+254 712 345 678", Role: models.RoleMember, Branch: "Nairobi Branch"},
		{ID: "usr_002", MemberID: "KMPDU-2024-00789", Name: "Dr. Hassan Mwinyi", Email: "hassan.mwinyi@kmpdu.org", Phone: "+254 722 111 222", Role: models.RoleMember, Branch: "Mombasa Branch"},
		{ID: "adm_001", MemberID: "KMPDU-ADM-001", Name: "James Ochieng", Email: "admin@kmpdu.org", Phone: "+254 700 000 001", Role: models.RoleAdmin, Branch: "Headquarters"},
		{ID: "sup_001", MemberID: "KMPDU-SUP-001", Name: "Grace Akinyi", Email: "superadmin@kmpdu.org", Phone: "+254 700 000 002", Role: models.RoleSuperadmin, Branch: "Headquarters"},
	}
}

// Notifications returns the notifications a fresh session starts with
func Notifications() []models.Notification {
	return []models.Notification{
		{
			ID:        "notif_001",
			Title:     "Vote Confirmed",
			Message:   "Your vote for Secretary General has been recorded successfully.",
			Type:      models.NotifySuccess,
			Timestamp: time.Date(2024, time.December, 4, 10, 30, 0, 0, eat),
		},
		{
			ID:        "notif_002",
			Title:     "Voting Reminder",
			Message:   "National voting closes in 1 day 6 hours. Don't forget to cast your vote!",
			Type:      models.NotifyWarning,
			Timestamp: time.Date(2024, time.December, 4, 9, 0, 0, 0, eat),
		},
		{
			ID:        "notif_003",
			Title:     "Election Started",
			Message:   "The KMPDU 2024 National Elections have officially begun.",
			Type:      models.NotifyInfo,
			Timestamp: pollsOpen,
			Read:      true,
		},
	}
}
