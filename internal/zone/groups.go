package zone

import "strings"

const (
	// GroupSpecial holds airports and rail hubs.
	GroupSpecial = "Special Areas"
	// GroupUnassigned holds zones not listed in any group.
	GroupUnassigned = "Other/Unassigned"
)

type group struct {
	name     string
	outcodes map[string]struct{}
}

func newGroup(name, codes string) group {
	g := group{name: name, outcodes: make(map[string]struct{})}
	for _, c := range strings.Fields(codes) {
		g.outcodes[c] = struct{}{}
	}
	return g
}

// Order matters: an outcode listed twice belongs to the first group.
var groups = []group{
	newGroup("North West London", "NW1 NW2 NW3 NW4 NW5 NW6 NW7 NW8 NW9 NW10 NW11 HA0 HA1 HA2 HA3 HA4 HA5 HA6 HA7 HA8 HA9"),
	newGroup("West London", "W1 W2 W3 W4 W5 W6 W7 W8 W9 W10 W11 W12 W13 W14 WD3 WD4 WD6 WD7 WD17 WD18 WD19 WD23 WD24 WD25"),
	newGroup("South West London", "SW1 SW2 SW3 SW4 SW5 SW6 SW7 SW8 SW9 SW10 SW11 SW12 SW13 SW14 SW15 SW16 SW17 SW18 SW19 TW1 TW2 TW3 TW4 TW5 TW6 TW7 TW8 TW9 TW10 TW18 TW20 KT1 KT2 KT3 KT4 KT10 KT16 SM4 CR9 GU16"),
	newGroup("North London", "N1 N2 N3 N4 N5 N6 N7 N8 N9 N10 N11 N12 N13 N14 N15 N16 N17 N18 N19 N20 N21 N22 EN1 EN2 EN3 EN4 EN5 EN6 EN7"),
	newGroup("Outer West London", "UB1 UB2 UB3 UB4 UB5 UB6 UB7 UB8 UB9 UB10 UB11 SL2 SL3 SL4 SL6"),
	newGroup("North East London", "E1 E2 E3 E8 E9 E10 E11 E12 E13 E14 E15 E16 E17 E18 E20 IG1 IG6 IG9"),
	newGroup("City/Central", "EC1 EC2 EC3 EC4 WC1 WC2 W1J WC2A WC2E WC2H WC2N EC2M EC2N EC2Y EC3M EC3N EC3V EC4A EC4V WC1B"),
	newGroup("South East London", "SE1 SE2 SE3 SE4 SE5 SE6 SE7 SE8 SE9 SE10 SE11 SE12 SE13 SE14 SE15 SE16 SE17 SE18 SE19 SE20 SE21 SE22 SE23 SE24"),
	newGroup("Outer East London", "IG1 IG6 IG9 RM1 RM10"),
	newGroup("Outer North London", "AL1 AL2 AL8 LU2"),
	newGroup("Other UK", "CB2 CM13 CM24 HP13 OX2 OX7 OX26 RG1 RG14 BL8"),
}

// Group returns the report group a zone key belongs to.
func Group(key string) string {
	if strings.HasPrefix(key, SpecialPrefix) {
		return GroupSpecial
	}
	for _, g := range groups {
		if _, ok := g.outcodes[key]; ok {
			return g.name
		}
	}
	return GroupUnassigned
}

// GroupNames lists every report group in display order.
func GroupNames() []string {
	names := make([]string, 0, len(groups)+2)
	for _, g := range groups {
		names = append(names, g.name)
	}
	return append(names, GroupSpecial, GroupUnassigned)
}
