package seeders

import (
	"parts-tracker/internal/dto"
	"parts-tracker/pkg/utils"
)

// demoStep is a workflow operation applied after the part is created.
type demoStep struct {
	Action   string // approve, assign, start, complete
	Category string
	User     string
	Amount   *int
}

type demoPart struct {
	Part  dto.CreatePartDTO
	Steps []demoStep
}

var demoParts = []demoPart{
	{
		Part: dto.CreatePartDTO{PartID: "DT-001", Type: "cnc", Name: "Gearbox side plate", Subsystem: "Drivetrain",
			Material: "6061 Aluminum", MaterialThickness: utils.ToPtr("0.25in"), Amount: utils.ToPtr(2)},
	},
	{
		Part: dto.CreatePartDTO{PartID: "DT-002", Type: "cnc", Name: "Motor mount", Subsystem: "Drivetrain",
			Material: "6061 Aluminum", MaterialThickness: utils.ToPtr("0.125in"), Amount: utils.ToPtr(4)},
		Steps: []demoStep{{Action: "approve", Category: "cnc"}},
	},
	{
		Part: dto.CreatePartDTO{PartID: "EL-010", Type: "cnc", Name: "Intake bracket", Subsystem: "Elevator",
			Material: "Polycarbonate", MaterialThickness: utils.ToPtr("0.25in"), Amount: utils.ToPtr(1)},
		Steps: []demoStep{{Action: "approve", Category: "cnc"}, {Action: "assign", User: "Riley"}},
	},
	{
		Part: dto.CreatePartDTO{PartID: "EL-011", Type: "hand", Name: "Carriage spacer", Subsystem: "Elevator",
			Material: "Delrin", Amount: utils.ToPtr(8), Notes: "Lathe, 0.5in OD"},
		Steps: []demoStep{{Action: "approve", Category: "hand"}, {Action: "assign", User: "Jordan"}, {Action: "complete"}},
	},
	{
		Part: dto.CreatePartDTO{PartID: "IN-020", Type: "hand", Name: "Roller shaft", Subsystem: "Intake",
			Material: "Hex shaft", Amount: utils.ToPtr(3)},
		Steps: []demoStep{{Action: "approve", Category: "hand"}},
	},
	{
		Part: dto.CreatePartDTO{PartID: "MS-100", Type: "misc", Name: "Bearings", Subsystem: "Drivetrain",
			Material: "COTS", Amount: utils.ToPtr(16), Notes: "Order from vendor"},
		Steps: []demoStep{{Action: "approve", Category: "misc"}, {Action: "complete", Amount: utils.ToPtr(10)}},
	},
	{
		Part: dto.CreatePartDTO{PartID: "MS-101", Type: "misc", Name: "Bumper fabric", Subsystem: "Frame",
			Material: "Cordura", Amount: utils.ToPtr(1)},
		Steps: []demoStep{{Action: "approve", Category: "completed"}},
	},
}
