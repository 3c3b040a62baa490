package command

// Default tables for the dispenser kiosk, ko-KR. Keyword variants cover the
// common recognizer mis-hearings (확팬 for 확펜, 김치/김씨 for 킴스).

func DefaultDispenseRules() []DispenseRule {
	return []DispenseRule{
		{
			Medicine: "확펜",
			Any:      []string{"확펜", "확팬"},
			Intent:   []string{"줘", "주세요", "주십시오"},
		},
		// Headache symptom aliases to 확펜 with no request suffix required.
		{
			Medicine: "확펜",
			Any:      []string{"머리"},
			Also:     []string{"아프", "아픈", "아파"},
		},
		{
			Medicine: "처방약",
			Any: []string{
				"킴스약국", "킴스", "김치약국", "김치", "김씨약국", "김씨",
				"처방약", "병원약",
			},
			Intent: []string{"줘", "주세요", "주십시오", "받은", "약초"},
		},
	}
}

func DefaultNavRules() []NavRule {
	return []NavRule{
		{Name: "SCAN", Destination: "/scan/", Keywords: []string{
			"약투입", "약투입창", "약투입페이지", "약투입해", "약봉지스캔",
			"봉지스캔", "봉투스캔", "약봉투", "스캔", "업로드", "약봉지", "투입",
		}},
		{Name: "MEDS", Destination: "/meds/", Keywords: []string{
			"현재있는약", "현재약", "약목록", "보관약", "보관중인약", "내약",
		}},
		{Name: "PRESCRIPTION", Destination: "/how2prescription/", Keywords: []string{
			"병원약", "처방",
		}},
		// 머리 with no pain word falls through to the OTC guide; the
		// dispense rules catch 머리+아파 first.
		{Name: "OTC", Destination: "/how2otc/", Keywords: []string{
			"상비약", "otc", "약국약", "머리",
		}},
		{Name: "VOICE_SETUP", Destination: "/voice_setup/", Keywords: []string{
			"음성등록", "등록",
		}},
		{Name: "GREEN", Destination: "/how2green/", Keywords: []string{
			"약분출", "분출",
		}},
		{Name: "VOICE", Destination: "/voice/", Keywords: []string{
			"케어필과대화", "대화", "채팅", "챗봇", "보이스", "말하기",
		}},
		{Name: "HOME", Destination: "/", Keywords: []string{
			"홈으로", "홈화면", "메인화면", "메인으로", "홈", "메인", "메뉴", "처음",
		}},
	}
}
